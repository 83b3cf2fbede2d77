package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"nutriplan/internal/models"
)

func initToolsChain() []tool.BaseTool {
	var tools []tool.BaseTool

	if ns := initNutritionSearch(); ns != nil {
		tools = append(tools, ns)
	}
	if ar := initAttachmentReader(); ar != nil {
		tools = append(tools, ar)
	}
	return tools
}

// initNutritionSearch builds a web search tool the model uses to look up
// nutrition data it is not sure about (ingredient macros, product labels).
func initNutritionSearch() tool.InvokableTool {
	googleTool := initGoogleSearch()
	duckTool := initDDGSearch()
	if googleTool == nil && duckTool == nil {
		log.Printf("nutrition search tool disabled: no search providers available")
		return nil
	}

	ns := &nutritionSearchTool{
		google:     googleTool,
		duck:       duckTool,
		httpClient: &http.Client{Timeout: webSearchHTTPTimeout},
	}

	info := &schema.ToolInfo{
		Name: "nutrition_search",
		Desc: "Search the web for nutrition facts (ingredient macros, " +
			"calorie tables, product labels); " +
			"automatically falls back to another provider if needed; " +
			"can fetch a URL directly.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query or URL to look up",
				Type:     schema.String,
				Required: true,
			},
		}),
	}

	return utils.NewTool(info, ns.run)
}

type nutritionSearchTool struct {
	google     tool.InvokableTool
	duck       tool.InvokableTool
	httpClient *http.Client
}

type nutritionSearchParams struct {
	Query string `json:"query"`
}

func (w *nutritionSearchTool) run(ctx context.Context, params *nutritionSearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}

	if looksLikeURL(query) {
		if content, err := w.fetchURL(ctx, query); err == nil {
			return content, nil
		} else {
			log.Printf("nutrition url loader failed: %v", err)
		}
	}

	payloadBytes, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	payload := string(payloadBytes)

	if w.google != nil {
		if result, err := w.google.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			log.Printf("google search failed: %v", err)
		}
	}

	if w.duck != nil {
		if result, err := w.duck.InvokableRun(ctx, payload); err == nil {
			return result, nil
		} else {
			log.Printf("duckduckgo search failed: %v", err)
		}
	}

	return "", errors.New("no search provider succeeded")
}

// attachment reader tool
type attachmentReader struct {
	loader *file.FileLoader
}

var attachmentReaderLimiter = newToolRateLimiter(attachmentRateLimit, attachmentRateWindow)

type attachmentReaderParams struct {
	FileID     int64 `json:"file_id"`
	ChunkIndex int   `json:"chunk_index,omitempty"`
	ChunkSize  int   `json:"chunk_size,omitempty"`
}

func initAttachmentReader() tool.InvokableTool {
	parserExt, err := parser.NewExtParser(context.Background(), &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		log.Printf("attachment reader disabled: %v", err)
		return nil
	}
	loader, err := file.NewFileLoader(context.Background(), &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		log.Printf("attachment reader disabled: %v", err)
		return nil
	}
	reader := &attachmentReader{
		loader: loader,
	}
	info := &schema.ToolInfo{
		Name: "attachment_reader",
		Desc: "Read documents the patient uploaded (diet guidelines, lab results) in small chunks. Provide the file_id (and optional chunk_index / chunk_size) to fetch a specific segment; limit 3 calls per minute per session.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"file_id": {
				Desc:     "ID of the file to read, taken from the uploaded-document list in the conversation.",
				Type:     schema.Integer,
				Required: true,
			},
			"chunk_index": {
				Desc:     "Zero-based chunk index to read, default 0.",
				Type:     schema.Integer,
				Required: false,
			},
			"chunk_size": {
				Desc:     "Number of characters per chunk (max 2000, default 1000).",
				Type:     schema.Integer,
				Required: false,
			},
		}),
	}
	return utils.NewTool(info, reader.run)
}

func (t *attachmentReader) run(ctx context.Context, params *attachmentReaderParams) (string, error) {
	if params == nil || params.FileID <= 0 {
		return "", errors.New("file_id is required")
	}
	files := AttachmentsFromContext(ctx)
	if len(files) == 0 {
		return "", errors.New("no attachments available for this session")
	}
	var target *models.Attachment
	for _, f := range files {
		if f != nil && f.ID == params.FileID {
			target = f
			break
		}
	}
	if target == nil {
		return "", errors.New("file not found in current session")
	}
	userID, sessionID, ok := ToolSessionFromContext(ctx)
	key := fmt.Sprintf("file:%d", params.FileID)
	if ok {
		key = fmt.Sprintf("user:%d:session:%d", userID, sessionID)
	}
	if !attachmentReaderLimiter.Allow(key) {
		return "", errors.New("attachment reader rate limit exceeded, please retry in a minute")
	}

	docs, err := t.loader.Load(ctx, document.Source{URI: target.StoredPath})
	if err != nil {
		return "", fmt.Errorf("load file: %w", err)
	}
	var builder strings.Builder
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		builder.WriteString(content)
		builder.WriteString("\n\n")
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", errors.New("file has no readable text content")
	}
	chunkSize := params.ChunkSize
	if chunkSize <= 0 || chunkSize > attachmentChunkSizeMax {
		chunkSize = attachmentChunkSizeDefault
	}
	if chunkSize < attachmentChunkSizeMin {
		chunkSize = attachmentChunkSizeMin
	}
	chunkIndex := params.ChunkIndex
	if chunkIndex < 0 {
		chunkIndex = 0
	}
	runes := []rune(text)
	totalChunks := (len(runes) + chunkSize - 1) / chunkSize
	if totalChunks == 0 {
		return fmt.Sprintf("File: %s has no readable text content.", target.FileName), nil
	}
	if chunkIndex >= totalChunks {
		chunkIndex = totalChunks - 1
	}
	start := chunkIndex * chunkSize
	end := start + chunkSize
	if end > len(runes) {
		end = len(runes)
	}
	segment := string(runes[start:end])
	return fmt.Sprintf("File: %s\nChunk %d/%d\n\n%s", target.FileName, chunkIndex+1, totalChunks, segment), nil
}

func initDDGSearch() tool.InvokableTool {
	duckConfig := &duckduckgo.Config{
		ToolName:   "nutrition_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	}
	duckTool, err := duckduckgo.NewTextSearchTool(context.Background(), duckConfig)
	if err != nil {
		log.Printf("duckduckgo search tool disabled: %v", err)
		return nil
	}
	return duckTool
}

func initGoogleSearch() tool.InvokableTool {
	googleAPIKey := os.Getenv("GOOGLE_API_KEY")
	googleSearchEngineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if googleAPIKey == "" || googleSearchEngineID == "" {
		log.Printf("google search tool disabled: missing GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID")
		return nil
	}
	googleTool, err := googlesearch.NewTool(context.Background(), &googlesearch.Config{
		ToolName:       "nutrition_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         googleAPIKey,
		SearchEngineID: googleSearchEngineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		log.Printf("google search tool disabled: %v", err)
		return nil
	}
	return googleTool
}
