package main

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"ledgerlens/internal/capture"
	"ledgerlens/internal/expense"
	"ledgerlens/internal/extract"
	"ledgerlens/internal/logging"
	"ledgerlens/internal/review"
	"ledgerlens/internal/scan"
	"ledgerlens/internal/transcribe"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("ledgerlens")
	var (
		mode          = fs.StringLong("mode", "", "Capture mode: 'voice', 'receipt' or 'text'")
		input         = fs.StringLong("input", "", "Input file (audio clip, receipt image) or literal text")
		dbPath        = fs.StringLong("db", "ledgerlens.db", "Database file path")
		owner         = fs.StringLong("owner", "local", "Owner ID for stored expenses")
		token         = fs.StringLong("token", "", "Bearer token for remote services")
		transcribeURL = fs.StringLong("transcribe-url", "https://api.openai.com/v1", "Speech-to-text API base URL")
		openaiKey     = fs.StringLong("openai-key", "", "API key for transcription (or set OPENAI_API_KEY env var)")
		parseURL      = fs.StringLong("parse-url", "http://localhost:8090", "Receipt parse service URL")
		locale        = fs.StringLong("locale", "", "Locale hint for receipt parsing (e.g. en-US)")
		currency      = fs.StringLong("currency", "", "Currency hint for receipt parsing (e.g. USD)")
		captureCmd    = fs.StringLong("capture-cmd", "", "Audio capture tool for live recording (e.g. arecord)")
		spoolDir      = fs.StringLong("spool", os.TempDir(), "Spool directory for captured media")
		assumeYes     = fs.BoolLong("yes", "Skip interactive review and save the draft as-is")
		list          = fs.BoolLong("list", "List stored expenses and exit")
		summary       = fs.StringLong("summary", "", "Category summary for a date range 'FROM:TO' (YYYY-MM-DD)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("LEDGERLENS"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logging.Setup(logging.DefaultConfig())

	store, err := expense.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to open expense store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	identity := &expense.StaticIdentity{UserID: *owner, BearerToken: *token}

	if *list {
		if err := listExpenses(store, *owner); err != nil {
			slog.Error("Failed to list expenses", "error", err)
			os.Exit(1)
		}
		return
	}
	if *summary != "" {
		if err := printSummary(store, *owner, *summary); err != nil {
			slog.Error("Failed to summarize expenses", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx := context.Background()

	var draft *expense.Draft
	var media *capture.MediaHandle

	switch *mode {
	case "voice":
		apiKey := *openaiKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Transcription API key is required. Set --openai-key flag or OPENAI_API_KEY environment variable")
			os.Exit(1)
		}
		draft, err = voiceDraft(ctx, *input, *captureCmd, *spoolDir, *transcribeURL, apiKey)
	case "receipt":
		draft, media, err = receiptDraft(ctx, *input, *parseURL, *token, *locale, *currency)
	case "text":
		if *input == "" {
			err = errors.New("text mode needs --input")
		} else {
			draft = extract.NewEngine().Extract(*input)
		}
	default:
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintln(os.Stderr, "error: --mode must be 'voice', 'receipt' or 'text'")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to produce expense draft", "mode", *mode, "error", err)
		os.Exit(1)
	}

	flow := review.NewFlow(draft, media, store, identity)
	if err := runReview(flow, *assumeYes); err != nil {
		slog.Error("Review failed", "error", err)
		os.Exit(1)
	}
}

// voiceDraft produces a draft from recorded or pre-recorded speech
func voiceDraft(ctx context.Context, input, captureCmd, spoolDir, baseURL, apiKey string) (*expense.Draft, error) {
	var handle *capture.MediaHandle
	var err error

	if input != "" {
		handle = capture.NewFileHandle(input, "", nil)
	} else {
		handle, err = recordClip(ctx, captureCmd, spoolDir)
		if err != nil {
			return nil, err
		}
	}

	client := transcribe.NewClient(baseURL, apiKey)
	result, err := client.Transcribe(ctx, handle)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Transcript: %s\n", result.Text)

	return extract.NewEngine().Extract(result.Text), nil
}

// recordClip runs a live recording session until Enter is pressed or the
// duration cap auto-stops it.
func recordClip(ctx context.Context, captureCmd, spoolDir string) (*capture.MediaHandle, error) {
	if captureCmd == "" {
		return nil, errors.New("live recording needs --capture-cmd (or pass a clip with --input)")
	}

	spool, err := capture.NewMediaSpool(spoolDir)
	if err != nil {
		return nil, err
	}
	backend := capture.NewDeviceBackend(captureCmd, nil, "", "audio/wav", spool)
	session := capture.NewAudioSession(backend)

	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	fmt.Printf("Recording (up to %s). Press Enter to stop.\n", capture.MaxRecordingDuration)

	enter := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()

	select {
	case <-enter:
		return session.Stop()
	case result := <-session.AutoStopped():
		fmt.Println("Recording stopped at the duration cap.")
		return result.Handle, result.Err
	}
}

// receiptDraft produces a draft from a receipt image via the parse service
func receiptDraft(ctx context.Context, input, parseURL, token, locale, currency string) (*expense.Draft, *capture.MediaHandle, error) {
	if input == "" {
		return nil, nil, errors.New("receipt mode needs --input")
	}

	source := capture.NewFileSource(input, "", nil, nil)
	session := capture.NewImageSession(source)
	handle, err := session.PickFromLibrary(ctx)
	if err != nil {
		return nil, nil, err
	}

	client := scan.NewClient(parseURL, token)
	result, err := client.Parse(ctx, handle, locale, currency)
	if err != nil {
		var rateErr *scan.RateLimitError
		if errors.As(err, &rateErr) {
			return nil, nil, fmt.Errorf("parse service is rate limiting, retry in %s", rateErr.RetryAfter)
		}
		return nil, nil, err
	}
	fmt.Printf("Parsed by %s (confidence %.2f)\n", result.Model, result.Confidence)

	return scan.DraftFromResult(result, currency, time.Now()), nil, nil
}

// runReview walks the user through confirming or correcting the draft
func runReview(flow *review.Flow, assumeYes bool) error {
	printDraft(flow.Working())
	if flow.LowConfidence() {
		fmt.Println("Warning: low extraction confidence, please verify the fields.")
	}

	if !assumeYes {
		reader := bufio.NewReader(os.Stdin)
		for {
			fmt.Print("Edit field (name=value), 's' to save, 'd' to discard: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return flow.Discard()
			}
			line = strings.TrimSpace(line)

			switch line {
			case "s", "save", "":
				goto confirm
			case "d", "discard":
				fmt.Println("Draft discarded.")
				return flow.Discard()
			}

			update, err := parseEdit(line)
			if err != nil {
				fmt.Printf("  %v\n", err)
				continue
			}
			if err := flow.Apply(update); err != nil {
				fmt.Printf("  %v\n", err)
				continue
			}
			printDraft(flow.Working())
		}
	}

confirm:
	saved, err := flow.Confirm()
	if err != nil {
		return err
	}
	fmt.Printf("Saved expense %s\n", saved.ID)
	return nil
}

// parseEdit turns "amount=12.50" style input into a field update
func parseEdit(line string) (expense.Update, error) {
	var update expense.Update

	name, value, found := strings.Cut(line, "=")
	if !found {
		return update, fmt.Errorf("expected name=value, got %q", line)
	}
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)

	switch name {
	case "amount":
		amount, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return update, fmt.Errorf("amount must be a number, got %q", value)
		}
		update.Amount = &amount
	case "currency":
		update.Currency = &value
	case "description":
		update.Description = &value
	case "category":
		category := expense.Category(value)
		update.Category = &category
	case "date":
		update.Date = &value
	default:
		return update, fmt.Errorf("unknown field %q (amount, currency, description, category, date)", name)
	}
	return update, nil
}

func printDraft(draft expense.Draft) {
	fmt.Printf("  amount:      %.2f %s\n", draft.Amount, draft.Currency)
	fmt.Printf("  description: %s\n", draft.Description)
	fmt.Printf("  category:    %s\n", draft.Category)
	fmt.Printf("  date:        %s\n", draft.Date)
	fmt.Printf("  confidence:  %.2f\n", draft.Confidence)
}

func listExpenses(store expense.Store, owner string) error {
	records, err := store.ListByOwner(owner)
	if err != nil {
		return err
	}
	for _, record := range records {
		fmt.Printf("%s  %s  %8.2f %s  %-13s  %s\n",
			record.ID, record.Date, record.Amount, record.Currency, record.Category, record.Description)
	}
	fmt.Printf("%d expense(s)\n", len(records))
	return nil
}

func printSummary(store expense.Store, owner, dateRange string) error {
	from, to, found := strings.Cut(dateRange, ":")
	if !found {
		return fmt.Errorf("summary range must be FROM:TO, got %q", dateRange)
	}
	totals, err := store.SummaryByCategory(owner, from, to)
	if err != nil {
		return err
	}
	for _, category := range expense.Categories {
		if total, ok := totals[category]; ok {
			fmt.Printf("%-13s  %10.2f\n", category, total)
		}
	}
	return nil
}
