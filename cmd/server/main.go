package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dioniDR/ai-forge/internal/ai"
	"github.com/dioniDR/ai-forge/internal/ai/ollama"
	"github.com/dioniDR/ai-forge/internal/ai/openai"
	"github.com/dioniDR/ai-forge/internal/ai/registry"
	"github.com/dioniDR/ai-forge/internal/app"
	"github.com/dioniDR/ai-forge/internal/apps/calculator"
	"github.com/dioniDR/ai-forge/internal/config"
	"github.com/dioniDR/ai-forge/internal/configstore"
	"github.com/dioniDR/ai-forge/internal/logging"
	"github.com/dioniDR/ai-forge/internal/prompts"
	"github.com/dioniDR/ai-forge/internal/ws"
	staticserver "github.com/dioniDR/ai-forge/static"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const version = "v0.1.0-dev"

type appDef struct {
	defaults func() map[string]any
	routes   func(*app.App)
}

var apps = map[string]appDef{
	calculator.Name: {defaults: calculator.Defaults, routes: calculator.Routes},
}

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
		appFlag     = flag.String("app", "", "App to serve (overrides APP_NAME env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`AI Forge - pluggable AI apps over local and cloud models

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8000 or PORT env var)
  --app NAME      App to serve: %s (default: calculator or APP_NAME env var)

Environment Variables:
  PORT                  Port to listen on (default: 8000)
  APP_NAME              App to serve (default: calculator)
  DATA_DIR              Directory for config and prompt files (default: data)
  GIN_MODE              gin mode: release, debug or test (default: release)
  CORS_ORIGINS          Comma separated allowed origins (default: any)
  OLLAMA_BASE_URL       Ollama host URL (default: http://localhost:11434)
  OLLAMA_TIMEOUT        Chat and model call timeout (default: 60s)
  OLLAMA_PULL_TIMEOUT   Model download timeout (default: 300s)
  OLLAMA_PROBE_TIMEOUT  Liveness probe timeout (default: 5s)
  OPENAI_API_KEY        OpenAI API key (enables the openai provider)
  OPENAI_BASE_URL       Custom OpenAI API base URL (optional)
  LOG_LEVEL             debug, info, warn or error (default: info)
  LOG_FILE              Also write JSON logs to this rotated file (optional)

Examples:
  %s                  Start the calculator with default settings
  %s --port 3000      Start server on port 3000

Visit http://localhost:8000 after starting the server.
`, os.Args[0], strings.Join(appNames(), ", "), os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("AI Forge %s\n", version)
		return
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
	}
	if *appFlag != "" {
		cfg.AppName = *appFlag
	}

	logs, err := logging.Setup(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logs.Close()

	def, ok := apps[cfg.AppName]
	if !ok {
		log.Fatal().Str("app", cfg.AppName).Strs("available", appNames()).Msg("unknown app")
	}

	gin.SetMode(cfg.GinMode)

	store, err := configstore.Open(cfg.ConfigFile(cfg.AppName), def.defaults())
	if err != nil {
		log.Fatal().Err(err).Msg("open config")
	}
	library, err := prompts.Open(cfg.PromptsFile(cfg.AppName))
	if err != nil {
		log.Fatal().Err(err).Msg("open prompts")
	}

	// Providers
	providers := registry.New(context.Background(),
		registry.Known{Name: ollama.Name, New: func() (ai.Provider, error) {
			return ollama.New(cfg.OllamaHost, ollama.WithTimeouts(cfg.OllamaTimeout, cfg.OllamaPullTimeout, cfg.OllamaProbeTimeout)), nil
		}},
		registry.Known{Name: openai.Name, New: func() (ai.Provider, error) {
			return openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OllamaTimeout)
		}},
	)
	log.Info().Strs("providers", providers.Names()).Msg("providers ready")

	a := app.New(app.Options{
		Name:        cfg.AppName,
		Config:      store,
		Prompts:     library,
		Providers:   providers,
		CORSOrigins: cfg.CORSOrigins,
		Routes:      def.routes,
	})

	// Socket server
	io := ws.New(a).Mount(a.Engine)
	defer io.Close()

	// Serve frontend for all other routes
	static := staticserver.Handler()
	a.Engine.NoRoute(gin.WrapH(static))

	log.Info().Str("app", cfg.AppName).Str("port", cfg.Port).Msg("listening")
	if err := a.Engine.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func appNames() []string {
	names := make([]string, 0, len(apps))
	for n := range apps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
