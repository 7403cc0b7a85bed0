package kit

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// InputSchema reflects T into a flat JSON schema object suitable for an MCP
// tool's InputSchema. Fields are described with jsonschema struct tags.
func InputSchema[T any]() map[string]any {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	data, err := json.Marshal(r.Reflect(v))
	if err != nil {
		panic("kit: reflect schema: " + err.Error())
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		panic("kit: decode schema: " + err.Error())
	}
	delete(out, "$schema")
	delete(out, "$id")
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	return out
}
