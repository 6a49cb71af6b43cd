package adapters

import (
	llmprovider "github.com/haowjy/meridian-llm-go"

	"ripple/internal/domain/models"
	"ripple/internal/domain/services"
)

// The library calls file blocks "image"; everything else matches the
// domain part types one to one.
func toLibraryBlockType(partType string) string {
	if partType == models.PartTypeFile {
		return "image"
	}
	return partType
}

func fromLibraryBlockType(blockType string) string {
	if blockType == "image" {
		return models.PartTypeFile
	}
	return blockType
}

func toLibraryRequest(req *services.GenerateRequest) *llmprovider.GenerateRequest {
	messages := make([]llmprovider.Message, len(req.Messages))
	for i, msg := range req.Messages {
		blocks := make([]*llmprovider.Block, len(msg.Parts))
		for j := range msg.Parts {
			part := &msg.Parts[j]
			blocks[j] = &llmprovider.Block{
				BlockType:   toLibraryBlockType(part.PartType),
				Sequence:    part.Sequence,
				TextContent: part.TextContent,
				Content:     part.Content,
			}
		}
		messages[i] = llmprovider.Message{
			Role:   msg.Role,
			Blocks: blocks,
		}
	}

	return &llmprovider.GenerateRequest{
		Messages: messages,
		Model:    req.Model,
		Params:   toLibraryParams(req.Params),
	}
}

// The library wants every parameter as a pointer so unset and zero stay
// distinguishable; only set values are forwarded.
func toLibraryParams(params *models.GenerationParams) *llmprovider.RequestParams {
	if params == nil {
		return nil
	}

	lp := &llmprovider.RequestParams{
		Temperature: params.Temperature,
		TopP:        params.TopP,
	}
	if params.MaxTokens > 0 {
		maxTokens := params.MaxTokens
		lp.MaxTokens = &maxTokens
	}
	if params.System != "" {
		system := params.System
		lp.System = &system
	}
	if params.ThinkingEnabled {
		enabled := true
		lp.ThinkingEnabled = &enabled
	}
	if params.ThinkingLevel != "" {
		level := params.ThinkingLevel
		lp.ThinkingLevel = &level
	}
	return lp
}

func fromLibraryBlock(block *llmprovider.Block) *models.Part {
	return &models.Part{
		Sequence:    block.Sequence,
		PartType:    fromLibraryBlockType(block.BlockType),
		TextContent: block.TextContent,
		Content:     block.Content,
	}
}
