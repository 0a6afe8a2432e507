package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"photosorter/config"
)

var commands = []string{"scan", "status", "cancel", "duplicates", "apply", "organize", "list", "stats"}

// ParseArguments converts command-line arguments into a map of flags and values
func ParseArguments() map[string]string {
	args := make(map[string]string)

	// First, identify the command
	commandIndex := -1
	for i := 1; i < len(os.Args) && commandIndex < 0; i++ {
		for _, cmd := range commands {
			if os.Args[i] == cmd {
				args["command"] = cmd
				commandIndex = i
				break
			}
		}
	}

	// Process all arguments, skipping the command
	for i := 1; i < len(os.Args); i++ {
		if i == commandIndex {
			continue
		}

		arg := os.Args[i]

		// Handle flags with equals sign (--key=value)
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			flagName := strings.TrimPrefix(parts[0], "--")
			args[flagName] = parts[1]
			continue
		}

		// Handle flags without equals sign (--key value)
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")

			// Check if this is a boolean flag (no value)
			if i+1 >= len(os.Args) || strings.HasPrefix(os.Args[i+1], "--") {
				args[flagName] = "true"
			} else {
				// The next argument is the value
				args[flagName] = os.Args[i+1]
				i++ // Skip the value in the next iteration
			}
		}
	}

	return args
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage() {
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s scan --folder=PATH [--recursive] [--background] [--force] [--database=PATH] [--debug] [--logfile=PATH]\n", os.Args[0])
	fmt.Printf("  %s status --session=ID [--database=PATH]\n", os.Args[0])
	fmt.Printf("  %s cancel --session=ID [--database=PATH]\n", os.Args[0])
	fmt.Printf("  %s duplicates [--threshold=VALUE] [--rescan] [--database=PATH]\n", os.Args[0])
	fmt.Printf("  %s apply --group=ID --action=NAME [--files=ID,ID,...] [--keep=ID] [--database=PATH]\n", os.Args[0])
	fmt.Printf("  %s organize --folder=PATH [--dry-run] [--database=PATH]\n", os.Args[0])
	fmt.Printf("  %s list [--year=YYYY] [--month=MM] [--day=DD] [--database=PATH]\n", os.Args[0])
	fmt.Printf("  %s stats [--database=PATH]\n", os.Args[0])
	fmt.Printf("\nParameters:\n")
	fmt.Printf("  --folder      : Path to folder containing photos\n")
	fmt.Printf("  --recursive   : Descend into subfolders during scan\n")
	fmt.Printf("  --background  : Run the scan in the background regardless of size\n")
	fmt.Printf("  --force       : Discard any resumable scan and start over\n")
	fmt.Printf("  --session     : Scan session identifier\n")
	fmt.Printf("  --threshold   : Duplicate detection threshold (1-30, default: 10)\n")
	fmt.Printf("  --rescan      : Recompute duplicate groups even when cached results are valid\n")
	fmt.Printf("  --group       : Duplicate group identifier\n")
	fmt.Printf("  --action      : One of keep, delete, favorite, decide_later\n")
	fmt.Printf("  --files       : Comma-separated file IDs the action targets\n")
	fmt.Printf("  --keep        : File ID to preserve when action is delete\n")
	fmt.Printf("  --dry-run     : Show the organize plan without moving files\n")
	fmt.Printf("  --config      : Path to TOML configuration file\n")
	fmt.Printf("  --database    : Path to database file (default: %s)\n", config.Default().DatabasePath)
	fmt.Printf("  --debug       : Enable debug mode (logs detailed information)\n")
	fmt.Printf("  --logfile     : Specify custom log file path (default: photosorter.log)\n")
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s scan --folder=/photos/2024 --recursive --debug\n", os.Args[0])
	fmt.Printf("  %s duplicates --threshold=8\n", os.Args[0])
	fmt.Printf("  %s apply --group=GROUP_ID --action=delete --keep=42\n", os.Args[0])
	fmt.Printf("  %s organize --folder=/photos --dry-run\n", os.Args[0])
}

// ParseThreshold parses and validates the threshold value from string
func ParseThreshold(thresholdStr string) (int, error) {
	parsed, err := strconv.Atoi(thresholdStr)
	if err != nil || parsed < 1 || parsed > 30 {
		return 10, fmt.Errorf("invalid threshold value '%s', using default (10)", thresholdStr)
	}
	return parsed, nil
}

// ParseIDList splits a comma-separated list of numeric IDs.
func ParseIDList(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid file ID '%s': %v", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
