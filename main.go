package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"photosorter/config"
	"photosorter/database"
	"photosorter/duplicates"
	"photosorter/exifdate"
	"photosorter/fileops"
	"photosorter/imageprocessor"
	"photosorter/logging"
	"photosorter/organizer"
	"photosorter/scanner"
	"photosorter/signalhandler"
	"photosorter/types"
	"photosorter/utils"
)

func main() {
	// Set the optimal number of CPUs to use
	runtime.GOMAXPROCS(signalhandler.GetOptimalProcs())

	// Parse command line arguments into a map
	args := utils.ParseArguments()

	command, hasCommand := args["command"]
	if !hasCommand {
		utils.PrintUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(args["config"])
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	// --database overrides the configured path, --db is accepted as an alias
	if customDB, ok := args["database"]; ok && customDB != "" {
		cfg.DatabasePath = customDB
	} else if customDB, ok := args["db"]; ok && customDB != "" {
		cfg.DatabasePath = customDB
	}

	// Setup debug logging if enabled
	if _, ok := args["debug"]; ok {
		logPath := cfg.LogFile
		if customLogPath, ok := args["logfile"]; ok && customLogPath != "" {
			logPath = customLogPath
		}
		if err := logging.SetupLogger(logPath); err != nil {
			fmt.Printf("Warning: Failed to setup logging: %v\n", err)
		} else {
			fmt.Printf("Debug mode enabled. Logging to: %s\n", logPath)
			defer logging.CloseLogger()
		}
	}

	store, err := openStore(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Error initializing database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	switch command {
	case "scan":
		handleScanCommand(ctx, args, store, cfg)
	case "status":
		handleStatusCommand(ctx, args, store, cfg)
	case "cancel":
		handleCancelCommand(ctx, args, store, cfg)
	case "duplicates":
		handleDuplicatesCommand(ctx, args, store, cfg)
	case "apply":
		handleApplyCommand(ctx, args, store, cfg)
	case "organize":
		handleOrganizeCommand(ctx, args, store, cfg)
	case "list":
		handleListCommand(ctx, args, store)
	case "stats":
		handleStatsCommand(ctx, store)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		utils.PrintUsage()
		os.Exit(1)
	}
}

// openStore retries transient open failures before giving up.
func openStore(dbPath string) (*database.Store, error) {
	var store *database.Store
	var err error
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		store, err = database.Open(dbPath)
		if err == nil {
			return store, nil
		}
		if i < maxRetries-1 {
			log.Printf("Error initializing database (attempt %d/%d): %v - retrying...",
				i+1, maxRetries, err)
			time.Sleep(time.Second * time.Duration(i+1))
		}
	}
	return nil, err
}

func newEngine(store *database.Store, cfg config.Config) (*scanner.Engine, *exifdate.Provider) {
	exif := exifdate.New()
	engine := scanner.New(store, imageprocessor.GocvHasher{}, exif.CaptureTime, cfg)
	return engine, exif
}

func handleScanCommand(ctx context.Context, args map[string]string, store *database.Store, cfg config.Config) {
	folderPath, hasFolder := args["folder"]
	if !hasFolder || folderPath == "" {
		fmt.Println("Error: Missing folder path (use --folder=PATH)")
		os.Exit(1)
	}

	recursive := args["recursive"] == "true"
	forceRestart := args["force"] == "true"
	if args["background"] == "true" {
		// Any nonempty folder goes to the background path.
		cfg.BackgroundThreshold = 0
	}

	engine, exif := newEngine(store, cfg)
	defer exif.Close()

	// Persist the resume cursor before exiting on Ctrl-C.
	signalhandler.SetupHandler(func() {
		engine.CancelActive(context.Background())
	})

	tracker := scanner.NewProgressTracker(0)
	engine.OnProgress = tracker.Update
	defer tracker.Stop()

	startTime := time.Now()
	fmt.Printf("Starting photo scan of %s (recursive: %v)...\n", folderPath, recursive)

	session, err := engine.Scan(ctx, folderPath, recursive, forceRestart)
	if err != nil {
		log.Fatalf("Error scanning folder: %v", err)
	}

	// Background sessions are polled until they reach a terminal state.
	for session.Status == types.ScanInProgress {
		time.Sleep(time.Second)
		session, err = engine.Status(ctx, session.ID)
		if err != nil {
			log.Fatalf("Error polling session %s: %v", session.ID, err)
		}
		tracker.Update(session.ProcessedFiles, session.FailedFiles, session.TotalFiles)
	}
	tracker.Stop()

	fmt.Printf("\nScan %s\n", session.Status)
	fmt.Printf("Session: %s\n", session.ID)
	fmt.Printf("Processed: %d/%d files (%d failed)\n",
		session.ProcessedFiles, session.TotalFiles, session.FailedFiles)
	if session.ErrorMessage != "" {
		fmt.Printf("Message: %s\n", session.ErrorMessage)
	}
	fmt.Printf("Total execution time: %v\n", time.Since(startTime))
	fmt.Printf("Database: %s\n", store.Path())
}

func handleStatusCommand(ctx context.Context, args map[string]string, store *database.Store, cfg config.Config) {
	sessionID := args["session"]
	if sessionID == "" {
		fmt.Println("Error: Missing session ID (use --session=ID)")
		os.Exit(1)
	}

	engine, exif := newEngine(store, cfg)
	defer exif.Close()

	session, err := engine.Status(ctx, sessionID)
	if err != nil {
		exitOnError("Error fetching session", err)
	}

	fmt.Printf("Session:   %s\n", session.ID)
	fmt.Printf("Root:      %s\n", session.Root)
	fmt.Printf("Status:    %s\n", session.Status)
	fmt.Printf("Progress:  %.1f%% (%d/%d, %d failed)\n",
		session.ProgressPercent(), session.ProcessedFiles, session.TotalFiles, session.FailedFiles)
	if session.ResumeCursor != "" {
		fmt.Printf("Cursor:    %s\n", session.ResumeCursor)
	}
	if session.ErrorMessage != "" {
		fmt.Printf("Message:   %s\n", session.ErrorMessage)
	}
}

func handleCancelCommand(ctx context.Context, args map[string]string, store *database.Store, cfg config.Config) {
	sessionID := args["session"]
	if sessionID == "" {
		fmt.Println("Error: Missing session ID (use --session=ID)")
		os.Exit(1)
	}

	engine, exif := newEngine(store, cfg)
	defer exif.Close()

	if err := engine.Cancel(ctx, sessionID); err != nil {
		exitOnError("Error cancelling session", err)
	}
	fmt.Printf("Session %s cancelled. Re-run scan on the same folder to resume.\n", sessionID)
}

func handleDuplicatesCommand(ctx context.Context, args map[string]string, store *database.Store, cfg config.Config) {
	threshold := cfg.DefaultThreshold
	if thresholdStr, ok := args["threshold"]; ok {
		parsed, err := utils.ParseThreshold(thresholdStr)
		if err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
		threshold = parsed
	}
	rescan := args["rescan"] == "true"

	clusterer := duplicates.New(store, fileops.NewOS(cfg.TrashDirName), cfg)

	startTime := time.Now()
	groups, err := clusterer.Cluster(ctx, threshold, rescan)
	if err != nil {
		exitOnError("Error detecting duplicates", err)
	}

	if len(groups) == 0 {
		fmt.Printf("No duplicate groups found at threshold %d.\n", threshold)
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Group", "Files", "Similarity", "Status", "Members"})
	for _, group := range groups {
		t.AppendRow(table.Row{
			group.ID,
			len(group.MemberIDs),
			fmt.Sprintf("%.1f%%", group.SimilarityScore),
			group.Status,
			formatIDs(group.MemberIDs),
		})
	}
	t.Render()
	fmt.Printf("\n%d groups at threshold %d (took %v)\n", len(groups), threshold, time.Since(startTime))
}

func handleApplyCommand(ctx context.Context, args map[string]string, store *database.Store, cfg config.Config) {
	groupID := args["group"]
	if groupID == "" {
		fmt.Println("Error: Missing group ID (use --group=ID)")
		os.Exit(1)
	}
	action, err := types.ParseAction(args["action"])
	if err != nil {
		exitOnError("Error parsing action", err)
	}

	fileIDs, err := utils.ParseIDList(args["files"])
	if err != nil {
		log.Fatalf("Error parsing file list: %v", err)
	}

	var keepFileID int64
	if keepStr := args["keep"]; keepStr != "" {
		keepFileID, err = strconv.ParseInt(keepStr, 10, 64)
		if err != nil {
			log.Fatalf("Error parsing keep file ID: %v", err)
		}
	}

	clusterer := duplicates.New(store, fileops.NewOS(cfg.TrashDirName), cfg)
	result, err := clusterer.ApplyAction(ctx, groupID, action, fileIDs, keepFileID)
	if err != nil {
		exitOnError("Error applying action", err)
	}

	fmt.Printf("Applied %s to group %s (%d files affected)\n", action, groupID, result.Affected)
	for _, msg := range result.Errors {
		fmt.Printf("Warning: %s\n", msg)
	}
}

func handleOrganizeCommand(ctx context.Context, args map[string]string, store *database.Store, cfg config.Config) {
	folderPath := args["folder"]
	if folderPath == "" {
		fmt.Println("Error: Missing folder path (use --folder=PATH)")
		os.Exit(1)
	}
	dryRun := args["dry-run"] == "true"

	org := organizer.New(store, fileops.NewOS(cfg.TrashDirName), cfg)
	result, err := org.Organize(ctx, folderPath, dryRun)
	if err != nil {
		exitOnError("Error organizing folder", err)
	}

	if dryRun {
		if len(result.Plan) == 0 {
			fmt.Println("Nothing to organize.")
		} else {
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"File", "Source", "Destination"})
			for _, move := range result.Plan {
				t.AppendRow(table.Row{move.FileID, move.Source, move.Destination})
			}
			t.Render()
		}
		fmt.Printf("\nDry run: %d planned, %d already in place, %d without a capture date\n",
			len(result.Plan), result.Skipped, len(result.Unresolved))
	} else {
		fmt.Printf("Organized: %d moved, %d already in place, %d failed, %d without a capture date\n",
			result.Moved, result.Skipped, result.Failed, len(result.Unresolved))
		for _, msg := range result.Errors {
			fmt.Printf("Warning: %s\n", msg)
		}
	}
	for _, path := range result.Unresolved {
		fmt.Printf("No capture date: %s\n", path)
	}
}

func handleListCommand(ctx context.Context, args map[string]string, store *database.Store) {
	year, err := parseDatePart(args, "year")
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	month, err := parseDatePart(args, "month")
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	day, err := parseDatePart(args, "day")
	if err != nil {
		log.Fatalf("Error: %v", err)
	}

	files, err := store.ListByDate(ctx, year, month, day)
	if err != nil {
		exitOnError("Error listing files", err)
	}
	if len(files) == 0 {
		fmt.Println("No files found.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Path", "Taken", "Favorite", "Organized"})
	for _, file := range files {
		taken := ""
		if file.CaptureTime != nil {
			taken = file.CaptureTime.Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{file.ID, file.Path, taken, file.IsFavorite, file.IsOrganized})
	}
	t.Render()
	fmt.Printf("\n%d files\n", len(files))
}

func handleStatsCommand(ctx context.Context, store *database.Store) {
	stats, err := store.Stats(ctx)
	if err != nil {
		exitOnError("Error computing stats", err)
	}

	fmt.Printf("Total files:        %d\n", stats.TotalFiles)
	fmt.Printf("Favorites:          %d\n", stats.TotalFavorites)
	fmt.Printf("Organized:          %d\n", stats.OrganizedFiles)
	fmt.Printf("Pending duplicates: %d groups\n", stats.PendingGroups)
	if stats.HasDates {
		fmt.Printf("Date range:         %d - %d\n", stats.MinYear, stats.MaxYear)
	} else {
		fmt.Printf("Date range:         no capture dates recorded\n")
	}
}

func parseDatePart(args map[string]string, key string) (*int, error) {
	s, ok := args[key]
	if !ok || s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value '%s': %v", key, s, err)
	}
	return &v, nil
}

func formatIDs(ids []int64) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += strconv.FormatInt(id, 10)
	}
	return out
}

// exitOnError prints a taxonomy-aware message and exits nonzero.
func exitOnError(prefix string, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		fmt.Printf("%s: not found: %v\n", prefix, err)
	case errors.Is(err, types.ErrInvalidArgument):
		fmt.Printf("%s: invalid argument: %v\n", prefix, err)
	case errors.Is(err, types.ErrConflict):
		fmt.Printf("%s: conflict: %v\n", prefix, err)
	default:
		fmt.Printf("%s: %v\n", prefix, err)
	}
	logging.LogError("%s: %v", prefix, err)
	os.Exit(1)
}
