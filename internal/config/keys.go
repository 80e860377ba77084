package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key   string
	typ   keyType
	env   string
	apply func(cfg *Config, v any)
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "AVIARY_SERVER_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "AVIARY_SERVER_MCP_PORT",
		apply: func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
	},
	{
		key: "openai.api_key", typ: kString, env: "AVIARY_OPENAI_API_KEY",
		apply: func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
	},
	{
		key: "openai.base_url", typ: kString, env: "AVIARY_OPENAI_BASE_URL",
		apply: func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
	},
	{
		key: "openai.chat_model", typ: kString, env: "AVIARY_OPENAI_CHAT_MODEL",
		apply: func(cfg *Config, v any) { cfg.OpenAI.ChatModel = v.(string) },
	},
	{
		key: "openai.embed_model", typ: kString, env: "AVIARY_OPENAI_EMBED_MODEL",
		apply: func(cfg *Config, v any) { cfg.OpenAI.EmbedModel = v.(string) },
	},
	{
		key: "storage.data_dir", typ: kString, env: "AVIARY_STORAGE_DATA_DIR",
		apply: func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
	},
	{
		key: "storage.upload_dir", typ: kString, env: "AVIARY_STORAGE_UPLOAD_DIR",
		apply: func(cfg *Config, v any) { cfg.Storage.UploadDir = v.(string) },
	},
	{
		key: "log.level", typ: kString, env: "AVIARY_LOG_LEVEL",
		apply: func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
	},
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
