package backend

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"
)

// emptyObjectSchema 是无参数工具的 parameters。
var emptyObjectSchema = map[string]any{
	"type":       "object",
	"properties": map[string]any{},
}

// toolsFromSchema 将 eino ToolInfo 映射为 chat/completions 的 function tools（按名称去重，忽略空名称）。
func toolsFromSchema(infos []*schema.ToolInfo) ([]openai.Tool, error) {
	if len(infos) == 0 {
		return nil, nil
	}

	result := make([]openai.Tool, 0, len(infos))
	nameSet := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		name := strings.TrimSpace(info.Name)
		if name == "" {
			continue
		}
		normalized := strings.ToLower(name)
		if _, exists := nameSet[normalized]; exists {
			continue
		}
		nameSet[normalized] = struct{}{}

		var params any = emptyObjectSchema
		if info.ParamsOneOf != nil {
			js, err := info.ParamsOneOf.ToJSONSchema()
			if err != nil {
				return nil, fmt.Errorf("failed to convert parameters of tool %s: %w", name, err)
			}
			if js != nil {
				params = js
			}
		}

		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: info.Desc,
				Parameters:  params,
			},
		})
	}

	if len(result) == 0 {
		return nil, nil
	}
	return result, nil
}
