// Пакет openapi — встроенный OpenAPI-документ ServerSentinel API.
package openapi

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var spec []byte

// Raw возвращает исходный YAML документа.
func Raw() []byte {
	return spec
}

var (
	loadOnce sync.Once
	doc      *openapi3.T
	loadErr  error
)

// Load разбирает и проверяет документ. Результат кешируется.
func Load() (*openapi3.T, error) {
	loadOnce.Do(func() {
		loader := openapi3.NewLoader()
		d, err := loader.LoadFromData(spec)
		if err != nil {
			loadErr = fmt.Errorf("разбор OpenAPI: %w", err)
			return
		}
		if err := d.Validate(loader.Context); err != nil {
			loadErr = fmt.Errorf("проверка OpenAPI: %w", err)
			return
		}
		doc = d
	})
	return doc, loadErr
}
