package main

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/bill-itemizer/internal/api"
	"github.com/zombor/bill-itemizer/internal/archive"
	"github.com/zombor/bill-itemizer/internal/claim"
	"github.com/zombor/bill-itemizer/internal/common"
	"github.com/zombor/bill-itemizer/internal/gcs"
	"github.com/zombor/bill-itemizer/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

const usage = `usage:
  bill-itemizer run [flags] <claim_id> <link> [<link> ...] [--verbose]
  bill-itemizer serve [flags]`

// options are the flags shared by every subcommand
type options struct {
	scannerType  *string
	geminiKey    *string
	geminiModel  *string
	ollamaURL    *string
	ollamaModel  *string
	gcsEndpoint  *string
	gcsCreds     *string
	gcsAnonymous *bool
	maxFileBytes *int
	maxSyncBytes *int
	maxPages     *int
	workers      *int
	hashAlgo     *string
	logFormat    *string
	outputDir    *string
	dbPath       *string
	verbose      bool
}

func registerFlags(fs *ff.FlagSet, defaultDB string) *options {
	return &options{
		scannerType:  fs.StringLong("scanner", "gemini", "Transcription backend for scanned pages: 'gemini', 'ollama' or 'none'"),
		geminiKey:    fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel:  fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name"),
		ollamaURL:    fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel:  fs.StringLong("ollama-model", "llava", "Ollama vision model name"),
		gcsEndpoint:  fs.StringLong("gcs-endpoint", "", "Cloud Storage endpoint override (emulators)"),
		gcsCreds:     fs.StringLong("gcs-credentials", "", "Service account credentials file"),
		gcsAnonymous: fs.BoolLong("gcs-anonymous", "Access Cloud Storage without credentials"),
		maxFileBytes: fs.IntLong("max-file-bytes", int(gcs.DefaultMaxFileBytes), "Largest object downloaded per link"),
		maxSyncBytes: fs.IntLong("max-sync-bytes", int(scanning.DefaultMaxSyncBytes), "Largest document transcribed"),
		maxPages:     fs.IntLong("max-pages", scanning.DefaultMaxPages, "PDF pages read per document"),
		workers:      fs.IntLong("workers", 4, "Documents extracted concurrently per claim"),
		hashAlgo:     fs.StringLong("hash-algorithm", "sha256", "Fingerprint digest: 'sha256' or 'sha512'"),
		logFormat:    fs.StringLong("log-format", "text", "Log format: 'text' or 'json'"),
		outputDir:    fs.StringLong("output-dir", "", "Directory for JSON output artifacts (optional)"),
		dbPath:       fs.StringLong("db", defaultDB, "Run archive database path"),
	}
}

func main() {
	args := os.Args[1:]
	for _, arg := range args {
		if arg == "--version" || arg == "-version" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch args[0] {
	case "run":
		code = runCommand(ctx, args[1:])
	case "serve":
		code = serveCommand(ctx, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", args[0], usage)
		code = 1
	}
	stop()
	os.Exit(code)
}

// stripVerbose removes --verbose/-v wherever it appears so it may trail the links
func stripVerbose(args []string) ([]string, bool) {
	out := make([]string, 0, len(args))
	verbose := false
	for _, arg := range args {
		if arg == "--verbose" || arg == "-v" {
			verbose = true
			continue
		}
		out = append(out, arg)
	}
	return out, verbose
}

func parseFlags(fs *ff.FlagSet, opts *options, args []string) error {
	args, opts.verbose = stripVerbose(args)
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("BILL_ITEMIZER")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n%s\n", usage, ffhelp.Flags(fs))
		return err
	}
	return nil
}

func newLogger(opts *options) *slog.Logger {
	level := "info"
	if opts.verbose {
		level = "debug"
	}
	logger := common.NewLogger(common.LoggerConfig{Level: level, Format: *opts.logFormat}, os.Stderr)
	slog.SetDefault(logger)
	return logger
}

// newTranscriber returns nil for the 'none' backend
func newTranscriber(ctx context.Context, opts *options) (scanning.Transcriber, error) {
	switch *opts.scannerType {
	case "gemini":
		apiKey := *opts.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", *opts.geminiModel)
		return scanning.NewGemini(ctx, apiKey, *opts.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *opts.ollamaURL, "model", *opts.ollamaModel)
		return scanning.NewOllama(*opts.ollamaURL, *opts.ollamaModel)
	case "none":
		slog.Info("No scanner configured; only PDFs with a text layer can be read")
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid scanner type %q: valid are gemini, ollama or none", *opts.scannerType)
	}
}

// newProcessor wires the storage resolver and text extractor into a claim
// processor. The returned close function releases the transcriber.
func newProcessor(ctx context.Context, opts *options, logger *slog.Logger) (*claim.Processor, func(), error) {
	resolver, err := gcs.NewResolver(ctx, gcs.Config{
		Endpoint:        *opts.gcsEndpoint,
		CredentialsFile: *opts.gcsCreds,
		Anonymous:       *opts.gcsAnonymous,
		MaxFileBytes:    int64(*opts.maxFileBytes),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing storage client: %w", err)
	}

	transcriber, err := newTranscriber(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}
	if transcriber != nil {
		closeFn = func() { transcriber.Close() }
	}

	extractor := scanning.NewExtractor(transcriber, scanning.Config{
		MaxSyncBytes: int64(*opts.maxSyncBytes),
		MaxPages:     *opts.maxPages,
	}, logger)

	processor, err := claim.NewProcessor(claim.Config{
		Workers:       *opts.workers,
		HashAlgorithm: *opts.hashAlgo,
	}, resolver, extractor, logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return processor, closeFn, nil
}

func newArtifactWriter(opts *options, logger *slog.Logger) (*archive.ArtifactWriter, error) {
	if *opts.outputDir == "" {
		return nil, nil
	}
	store, err := archive.NewLocalStorage(*opts.outputDir)
	if err != nil {
		return nil, err
	}
	return archive.NewArtifactWriter(store, logger)
}

func runCommand(ctx context.Context, args []string) int {
	fs := ff.NewFlagSet("run")
	opts := registerFlags(fs, "")
	xlsx := fs.BoolLong("xlsx", "Also write bill_items.xlsx to the output directory")
	if err := parseFlags(fs, opts, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	positional := fs.GetArgs()
	if len(positional) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		return 1
	}
	claimID, links := positional[0], positional[1:]

	logger := newLogger(opts)

	processor, closeFn, err := newProcessor(ctx, opts, logger)
	if err != nil {
		logger.Error("Fatal error", "error", err)
		return 1
	}
	defer closeFn()

	writer, err := newArtifactWriter(opts, logger)
	if err != nil {
		logger.Error("Failed to initialize output directory", "error", err)
		return 1
	}

	result := processor.ProcessClaim(ctx, claimID, links)

	var written []string
	if writer != nil {
		written, err = writer.Write(result.ClaimID, result.Outputs)
		if err != nil {
			logger.Error("Failed to write artifacts", "error", err)
			return 1
		}
		if *xlsx && result.Outputs.BillItemList != nil {
			path, err := writer.WriteItemsXLSX(result.ClaimID, result.Outputs.BillItemList)
			if err != nil {
				logger.Error("Failed to write item spreadsheet", "error", err)
				return 1
			}
			written = append(written, path)
		}
	}

	if *opts.dbPath != "" {
		if err := archiveResult(*opts.dbPath, result, logger); err != nil {
			logger.Error("Failed to archive run", "error", err)
			return 1
		}
	}

	printResult(os.Stdout, result, written)
	if result.Status != claim.ResultSuccess {
		return 1
	}
	return 0
}

func archiveResult(path string, result *claim.Result, logger *slog.Logger) error {
	db, err := archive.NewBoltDB(path, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.SaveResult(result)
	return err
}

// printResult writes the SUCCESS or FAILED block for a run
func printResult(w io.Writer, result *claim.Result, written []string) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(w, rule)
	if result.Status == claim.ResultSuccess {
		fmt.Fprintln(w, "CLAIM PROCESSING SUCCESSFUL")
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Claim ID: %s\n", result.ClaimID)
		fmt.Fprintf(w, "Final Bill ID: %s\n", result.FinalBillID)
		fmt.Fprintln(w, "Outputs Generated:")
		for _, name := range []string{"final_bill", "bill_item_list", "supporting_doc_map", "audit_logs"} {
			fmt.Fprintf(w, "  %s\n", name)
		}
	} else {
		fmt.Fprintln(w, "CLAIM PROCESSING FAILED")
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Claim ID: %s\n", result.ClaimID)
		fmt.Fprintf(w, "Error: %s\n", result.Error)
		if result.ErrorCode != "" {
			fmt.Fprintf(w, "Error Code: %s\n", result.ErrorCode)
		}
	}
	if len(written) > 0 {
		fmt.Fprintln(w, "Files Written:")
		for _, p := range written {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	fmt.Fprintln(w, rule)
}

func serveCommand(ctx context.Context, args []string) int {
	fs := ff.NewFlagSet("serve")
	opts := registerFlags(fs, "bill-itemizer.db")
	var (
		port     = fs.IntLong("port", 8080, "HTTP server port")
		authUser = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
	)
	if err := parseFlags(fs, opts, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	logger := newLogger(opts)

	slog.Info("Initializing database...", "path", *opts.dbPath)
	db, err := archive.NewBoltDB(*opts.dbPath, logger)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		return 1
	}
	defer db.Close()

	processor, closeFn, err := newProcessor(ctx, opts, logger)
	if err != nil {
		slog.Error("Failed to initialize processor", "error", err)
		return 1
	}
	defer closeFn()

	var artifacts api.ArtifactWriter
	writer, err := newArtifactWriter(opts, logger)
	if err != nil {
		slog.Error("Failed to initialize output directory", "error", err)
		return 1
	}
	if writer != nil {
		artifacts = writer
	}

	server := api.NewServer(processor, db, artifacts, api.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}, logger)

	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	addr := fmt.Sprintf(":%d", *port)
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		return 1
	}
	slog.Info("Server stopped")
	return 0
}
