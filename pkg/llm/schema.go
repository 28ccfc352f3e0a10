package llm

import (
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
)

var schemaCache sync.Map // reflect.Type -> *jsonschema.Schema

// SchemaFor reflects the JSON schema the model must fill for T.
func SchemaFor[T any]() *jsonschema.Schema {
	var v T
	typ := reflect.TypeOf(v)
	if cached, ok := schemaCache.Load(typ); ok {
		return cached.(*jsonschema.Schema)
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(v)
	// 工具参数不需要 $schema/$id
	schema.Version = ""
	schema.ID = ""

	actual, _ := schemaCache.LoadOrStore(typ, schema)
	return actual.(*jsonschema.Schema)
}
