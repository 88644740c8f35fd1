package model

import "errors"

// Sentinelas compartilhados pelos drivers de storage. Vivem aqui (pacote
// folha) para que postgres e memory não precisem importar o pacote raiz.
var (
	ErrNotFound = errors.New("not found")

	// ErrConflict indica violação de restrição de unicidade
	// (ex.: segundo ticket open/pending para o mesmo contato).
	ErrConflict = errors.New("conflict")
)
