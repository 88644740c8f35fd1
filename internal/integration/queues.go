package integration

import (
	"strings"

	"github.com/open-zapdesk/zapdesk/internal/storage/model"
)

// PickQueue resolve o destino de uma transferência pedida por nome. O match
// é tolerante (igualdade sem caixa, depois substring); sem match o destino
// é a primeira fila da conexão, para a conversa nunca ficar sem dono.
func PickQueue(queues []model.Queue, name string) (model.Queue, bool) {
	if len(queues) == 0 {
		return model.Queue{}, false
	}
	want := strings.ToLower(strings.TrimSpace(name))
	if want != "" {
		for _, q := range queues {
			if strings.ToLower(q.Name) == want {
				return q, true
			}
		}
		for _, q := range queues {
			if strings.Contains(strings.ToLower(q.Name), want) {
				return q, true
			}
		}
	}
	return queues[0], true
}
