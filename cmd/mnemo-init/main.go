// Command mnemo-init bootstraps a mnemo data directory: it creates the
// directory, opens (and thereby migrates) the SQLite store, writes a
// starter admin config file, and records an operator name for default
// provenance attribution.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/mnemo/internal/config"
	"github.com/scrypster/mnemo/internal/storage/sqlite"
)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--verify" {
			runVerify()
			return
		}
	}

	printBanner()

	fmt.Println("Welcome to mnemo-init!")
	fmt.Println("This sets up a local SQLite-backed memory store for an agent.")
	fmt.Println()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("ERROR: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	dataPath := ask("Data directory", cfg.Storage.DataPath)
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		fmt.Printf("ERROR: failed to create data directory: %v\n", err)
		os.Exit(1)
	}
	cfg.Storage.DataPath = dataPath

	operatorName := ask("Default operator name (saved to the settings table)", cfg.User.UserName)
	cfg.User.UserName = operatorName

	dbPath := filepath.Join(dataPath, "mnemo.db")
	fmt.Printf("\nOpening store at %s (applying migrations if needed)...\n", dbPath)
	d, err := sqlite.Open(dbPath)
	if err != nil {
		fmt.Printf("ERROR: failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = d.Close() }()
	fmt.Println("OK: store ready")

	if operatorName != "" {
		if err := cfg.SaveConfig(d.DB()); err != nil {
			fmt.Printf("WARNING: failed to save operator name: %v\n", err)
		}
	}

	configDir := filepath.Join(dataPath, "config")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		fmt.Printf("WARNING: failed to create config directory: %v\n", err)
	} else {
		configPath := filepath.Join(configDir, "mnemo.yaml")
		if err := writeAdminConfig(configPath, cfg); err != nil {
			fmt.Printf("WARNING: failed to write admin config: %v\n", err)
		} else {
			fmt.Printf("OK: config written to %s\n", configPath)
		}
	}

	fmt.Printf(`
Setup complete!

Data path:    %s
Database:     %s
Operator:     %s

Try it out:
  mnemo-admin remember --agent alice --content "first memory"
  mnemo-admin recall   --principal alice --agent alice --query "memory"
  mnemo-admin verify   --agent alice
`, dataPath, dbPath, operatorName)
}

func printBanner() {
	fmt.Print(`

 _ __ ___  _ __   ___ _ __ ___   ___
| '_ ` + "`" + ` _ \| '_ \ / _ \ '_ ` + "`" + ` _ \ / _ \
| | | | | | | | |  __/ | | | | | (_) |
|_| |_| |_|_| |_|\___|_| |_| |_|\___/

Durable Memory for Long-Running Agents
`)
}

// runVerify performs a quick health check of a previously-initialized store.
func runVerify() {
	fmt.Println("mnemo-init verification")
	fmt.Println("========================")
	fmt.Println()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("ERROR: failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	statusOK := true
	dbPath := filepath.Join(cfg.Storage.DataPath, "mnemo.db")
	if info, err := os.Stat(dbPath); err == nil && !info.IsDir() {
		fmt.Printf("Database:     OK %s\n", dbPath)
	} else {
		fmt.Printf("Database:     MISSING %s (run mnemo-init to create it)\n", dbPath)
		statusOK = false
	}

	if info, err := os.Stat(cfg.Storage.DataPath); err == nil && info.IsDir() {
		testFile := filepath.Join(cfg.Storage.DataPath, ".mnemo-write-test")
		if err := os.WriteFile(testFile, []byte("test"), 0644); err == nil {
			os.Remove(testFile)
			fmt.Printf("Data path:    OK %s (writable)\n", cfg.Storage.DataPath)
		} else {
			fmt.Printf("Data path:    NOT WRITABLE %s\n", cfg.Storage.DataPath)
			statusOK = false
		}
	} else {
		fmt.Printf("Data path:    MISSING %s\n", cfg.Storage.DataPath)
		statusOK = false
	}

	fmt.Println()
	if statusOK {
		fmt.Println("Status:       READY")
		os.Exit(0)
	}
	fmt.Println("Status:       NOT READY")
	os.Exit(1)
}

// ask asks a free-text question with an optional default.
func ask(question, defaultVal string) string {
	scanner := bufio.NewScanner(os.Stdin)
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}
	if !scanner.Scan() {
		return defaultVal
	}
	val := strings.TrimSpace(scanner.Text())
	if val == "" {
		return defaultVal
	}
	return val
}

func writeAdminConfig(path string, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
