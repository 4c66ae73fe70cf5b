package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"

	"github.com/tango-sec/scamscreener/pkg/ai"
	"github.com/tango-sec/scamscreener/pkg/capture"
	"github.com/tango-sec/scamscreener/pkg/config"
	"github.com/tango-sec/scamscreener/pkg/detect"
	"github.com/tango-sec/scamscreener/pkg/feedback"
	"github.com/tango-sec/scamscreener/pkg/similarity"
)

const Version = "1.0.0"

// Screener bundles the pipeline with its collaborators. Process calls are
// serialized; the per-sender rolling state is not safe for concurrent use.
type Screener struct {
	mu       sync.Mutex
	cfg      *config.Config
	view     *config.RuleView
	scorer   *ai.Scorer
	pipeline *detect.Pipeline
	metrics  *feedback.MetricsService
	captures *capture.PostgresStore
}

// NewScreener wires every component from the config. Optional
// collaborators (similarity corpus, redis, postgres) degrade to nil when
// unavailable rather than failing startup.
func NewScreener(cfg *config.Config) *Screener {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	cfg.Validate()
	view := config.NewRuleView(cfg)

	store := &ai.FileModelStore{Path: cfg.ModelPath}
	scorer := ai.NewScorer(store)

	var detector *similarity.Detector
	if cfg.SimilarityEnabled {
		d, err := similarity.NewDetector(cfg.SimilarityThreshold)
		if err != nil {
			log.Printf("similarity detector disabled (init failed: %v)", err)
		} else if err := d.LoadCorpus(context.Background(), nil); err != nil {
			log.Printf("similarity detector disabled (corpus load failed: %v)", err)
		} else {
			detector = d
		}
	}

	mute := detect.NewMuteFilter(cfg.MuteEnabled, cfg.MuteNotifyEnabled, cfg.MuteNotifyIntervalSec, cfg.MutePatterns)
	whitelist := detect.NewWhitelist(cfg.WhitelistedSenders)

	pipeline := detect.NewPipeline(view, view, scorer, detector, mute, whitelist)
	if cfg.ShowWarningMessages {
		pipeline.AddOutputSink(detect.LogSink{})
	}

	var persister feedback.Persister
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		persister = feedback.NewRedisPersister(rdb)
		log.Printf("feedback metrics persisted to redis at %s", cfg.RedisAddr)
	}
	metrics := feedback.NewMetricsService(view, persister)
	pipeline.AddEvaluationConsumer(metrics.RecordEvaluation)
	pipeline.AddResetHook(metrics.ResetSession)

	s := &Screener{
		cfg:      cfg,
		view:     view,
		scorer:   scorer,
		pipeline: pipeline,
		metrics:  metrics,
	}

	if cfg.PostgresDSN != "" {
		captures, err := capture.OpenPostgres(context.Background(), cfg.PostgresDSN)
		if err != nil {
			log.Printf("auto-capture store disabled (connect failed: %v)", err)
		} else {
			s.captures = captures
			pipeline.AddEvaluationConsumer(s.captureSample)
			log.Println("auto-capture store enabled (postgres)")
		}
	}

	return s
}

// Process runs one event through the pipeline under the screener lock.
func (s *Screener) Process(ctx context.Context, event detect.MessageEvent) (detect.Evaluation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeline.Process(ctx, event)
}

// Reset clears all per-session pipeline state.
func (s *Screener) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipeline.Reset()
}

// Close releases external connections.
func (s *Screener) Close() {
	if s.captures != nil {
		s.captures.Close()
	}
}

func (s *Screener) captureSample(evaluation detect.Evaluation) {
	if !evaluation.Result.ShouldAutoCapture || s.captures == nil {
		return
	}
	triggered := evaluation.Result.TriggeredRules()
	ruleNames := make([]string, len(triggered))
	for i, rule := range triggered {
		ruleNames[i] = string(rule)
	}
	sample := capture.Sample{
		CapturedAtMs: time.Now().UnixMilli(),
		SenderKey:    evaluation.Event.SenderKey(),
		Channel:      string(evaluation.Event.Channel),
		Message:      evaluation.Event.RawMessage,
		Score:        evaluation.Result.TotalScore,
		Level:        evaluation.Result.Level.String(),
		Rules:        ruleNames,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.captures.SaveSample(ctx, sample); err != nil {
		log.Printf("auto-capture save failed: %v", err)
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		port := "3000"
		if len(os.Args) > 2 {
			port = os.Args[2]
		}
		runHTTPServer(port)
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Usage: screener scan <text>")
			os.Exit(1)
		}
		runCLIScan(strings.Join(os.Args[2:], " "))
	case "stream":
		runStream()
	case "train":
		if len(os.Args) < 3 {
			fmt.Println("Usage: screener train <samples.csv>")
			os.Exit(1)
		}
		runTrain(os.Args[2])
	case "version":
		fmt.Printf("scamscreener v%s\n", Version)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("scamscreener v%s - chat scam detection pipeline\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  screener serve [port]       Start HTTP server (default: 3000)")
	fmt.Println("  screener scan <text>        Score one message from the command line")
	fmt.Println("  screener stream             Read chat lines from stdin, warn on stdout")
	fmt.Println("  screener train <csv>        Train a fresh model from labelled samples")
	fmt.Println("  screener version            Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  SCREENER_CONFIG             Path to YAML config file")
	fmt.Println("  SCREENER_MODEL_PATH         Model weights file (JSON)")
	fmt.Println("  SCREENER_MIN_ALERT_LEVEL    LOW | MEDIUM | HIGH | CRITICAL")
	fmt.Println("  SCREENER_REDIS_ADDR         Redis address for feedback metrics")
	fmt.Println("  SCREENER_POSTGRES_DSN       Postgres DSN for auto-capture samples")
}

func loadConfig() *config.Config {
	cfg, err := config.LoadFile(os.Getenv("SCREENER_CONFIG"))
	if err != nil {
		log.Printf("config load failed, using defaults: %v", err)
		cfg = config.NewDefaultConfig()
		cfg.Validate()
	}
	return cfg
}

func runHTTPServer(port string) {
	screener := NewScreener(loadConfig())
	defer screener.Close()

	app := fiber.New(fiber.Config{
		AppName: "scamscreener",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	})

	app.Post("/v1/scan", func(c fiber.Ctx) error {
		var req struct {
			Sender      string `json:"sender"`
			Message     string `json:"message"`
			Channel     string `json:"channel"`
			TimestampMs int64  `json:"timestamp_ms"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.Message == "" {
			return c.Status(400).JSON(fiber.Map{"error": "message field is required"})
		}
		if req.TimestampMs <= 0 {
			req.TimestampMs = time.Now().UnixMilli()
		}

		event := detect.NewMessageEvent(req.Sender, req.Message, req.TimestampMs, detect.Channel(req.Channel))
		evaluation, processed := screener.Process(c.Context(), event)
		if !processed {
			return c.JSON(fiber.Map{"dropped": true})
		}
		return c.JSON(evaluation)
	})

	app.Post("/v1/feedback", func(c fiber.Ctx) error {
		var req struct {
			Message string `json:"message"`
			Label   int    `json:"label"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.Label != feedback.LabelLegit && req.Label != feedback.LabelScam {
			return c.Status(400).JSON(fiber.Map{"error": "label must be 0 (legit) or 1 (scam)"})
		}
		screener.metrics.RecordUserMark(req.Message, req.Label)
		return c.JSON(fiber.Map{"status": "recorded"})
	})

	app.Get("/v1/metrics", func(c fiber.Ctx) error {
		return c.JSON(screener.metrics.Snapshot())
	})

	app.Post("/v1/reset", func(c fiber.Ctx) error {
		screener.Reset()
		return c.JSON(fiber.Map{"status": "reset"})
	})

	log.Printf("scamscreener HTTP server starting on :%s", port)
	log.Printf("Endpoints:")
	log.Printf("  GET  /health       - Health check")
	log.Printf("  POST /v1/scan      - Score one message")
	log.Printf("  POST /v1/feedback  - Mark a warned message legit (0) or scam (1)")
	log.Printf("  GET  /v1/metrics   - Feedback metrics snapshot")
	log.Printf("  POST /v1/reset     - Clear per-session pipeline state")

	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}

func runCLIScan(text string) {
	screener := NewScreener(loadConfig())
	defer screener.Close()

	event := detect.NewMessageEvent("console", text, time.Now().UnixMilli(), detect.ChannelUnknown)
	evaluation, processed := screener.Process(context.Background(), event)
	if !processed {
		fmt.Println(`{"dropped": true}`)
		return
	}
	output, _ := json.MarshalIndent(evaluation, "", "  ")
	fmt.Println(string(output))
}

// runStream reads raw chat lines from stdin. Lines that do not parse as
// player chat are skipped; warnings print as single JSON lines.
func runStream() {
	screener := NewScreener(loadConfig())
	defer screener.Close()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	ctx := context.Background()

	for scanner.Scan() {
		event, ok := detect.ParseLine(scanner.Text(), time.Now().UnixMilli())
		if !ok {
			continue
		}
		evaluation, processed := screener.Process(ctx, event)
		if !processed || !evaluation.Decision.ShouldWarn {
			continue
		}
		line, err := json.Marshal(evaluation)
		if err != nil {
			log.Printf("encode warning: %v", err)
			continue
		}
		fmt.Println(string(line))
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("read stdin: %v", err)
	}
}

func runTrain(path string) {
	cfg := loadConfig()
	samples, err := ai.LoadSamplesCSV(path)
	if err != nil {
		log.Fatalf("load samples: %v", err)
	}

	trainer := ai.NewTrainer(&ai.FileModelStore{Path: cfg.ModelPath})
	result, err := trainer.TrainAndSave(samples)
	if err != nil {
		log.Fatalf("training failed: %v", err)
	}
	fmt.Printf("trained on %d samples (%d scam, %d legit), vocab size %d\n",
		result.SampleCount, result.PositiveCount,
		result.SampleCount-result.PositiveCount, result.VocabSize)
	fmt.Printf("model written to %s\n", cfg.ModelPath)
}
