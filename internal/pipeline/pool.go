package pipeline

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/open-zapdesk/zapdesk/internal/pkg/queue"
)

// Pool consome a fila durável com N workers. O despacho é chaveado pela
// conversa: jobs do mesmo (empresa, contato, conexão) caem sempre no mesmo
// worker, preservando a ordem por ticket enquanto conversas distintas
// andam em paralelo. Canais limitados dão a contrapressão.
type Pool struct {
	queue   queue.Queue
	handler *Handler
	log     *zap.Logger

	numWorkers int
	taskChans  []chan *queue.Job
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewPool(q queue.Queue, handler *Handler, log *zap.Logger, numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}

	chans := make([]chan *queue.Job, numWorkers)
	for i := range chans {
		chans[i] = make(chan *queue.Job, 64)
	}
	return &Pool{
		queue:      q,
		handler:    handler,
		log:        log,
		numWorkers: numWorkers,
		taskChans:  chans,
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.log.Info("pipeline pool: iniciando", zap.Int("workers", p.numWorkers))

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}

	p.wg.Add(1)
	go p.runDispatcher()

	p.log.Info("pipeline pool: iniciada com sucesso")
}

func (p *Pool) Stop() {
	p.log.Info("pipeline pool: encerrando")
	p.cancel()
	p.wg.Wait()
	for _, ch := range p.taskChans {
		close(ch)
	}
	p.log.Info("pipeline pool: encerrada")
}

func (p *Pool) runDispatcher() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
			job, err := p.queue.Dequeue(p.ctx, 1*time.Second)
			if err != nil {
				if p.ctx.Err() != nil {
					return
				}
				p.log.Error("pipeline pool: erro ao desenfileirar", zap.Error(err))
				continue
			}
			if job == nil {
				continue
			}

			// envio bloqueante: descartar quebraria a ordem por conversa
			select {
			case p.taskChans[p.workerFor(job)] <- job:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	p.log.Info("pipeline pool: worker iniciado", zap.Int("workerId", id))

	for {
		select {
		case <-p.ctx.Done():
			p.log.Info("pipeline pool: worker encerrando", zap.Int("workerId", id))
			return
		case job := <-p.taskChans[id]:
			if job == nil {
				return
			}
			p.handler.HandleJob(p.ctx, job)
		}
	}
}

// workerFor escolhe o worker pela chave da conversa.
func (p *Pool) workerFor(job *queue.Job) int {
	key := job.CompanyID + ":" + job.ContactID + ":" + job.ConnectionID
	if job.ContactID == "" {
		key = job.CompanyID + ":" + job.MessageID
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32()) % p.numWorkers
}
