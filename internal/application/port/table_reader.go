package port

import (
	"io"

	"github.com/dreschagin/process-detector/internal/domain/service"
)

// TableReader разбирает загруженный файл в таблицу строк.
type TableReader interface {
	Read(r io.Reader) (service.RawTable, error)
}
