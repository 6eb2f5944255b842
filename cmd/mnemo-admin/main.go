// Command mnemo-admin is the operator CLI for a local mnemo store: it
// wires a Coordinator against a SQLite file and exposes remember, recall,
// forget, verify, decay, and backup as subcommands.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/scrypster/mnemo/internal/attribution"
	"github.com/scrypster/mnemo/internal/authz"
	"github.com/scrypster/mnemo/internal/backup"
	"github.com/scrypster/mnemo/internal/cipher"
	"github.com/scrypster/mnemo/internal/config"
	"github.com/scrypster/mnemo/internal/embedding"
	"github.com/scrypster/mnemo/internal/engine"
	"github.com/scrypster/mnemo/internal/lifecycle"
	"github.com/scrypster/mnemo/internal/storage/sqlite"
	"github.com/scrypster/mnemo/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "remember":
		runRemember(args)
	case "recall":
		runRecall(args)
	case "forget":
		runForget(args)
	case "verify":
		runVerify(args)
	case "decay":
		runDecay(args)
	case "backup":
		runBackup(args)
	case "-h", "-help", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "mnemo-admin: unrecognized command %q\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `mnemo-admin: operate a local mnemo store

Usage:
  mnemo-admin <command> [flags]

Commands:
  remember   write a new memory
  recall     query memories
  forget     delete, decay, or archive memories
  verify     walk an agent's hash chains and report tampering
  decay      run one lifecycle decay pass over due memories
  backup     oneshot/list/health/restore/service backup operations

Every command accepts -db to select the SQLite file (default: from
MNEMO_DATA_PATH/mnemo.db or ./data/mnemo.db).
`)
}

// dbFlagDefault resolves the default database path the same way mnemo-init
// creates it: <data path>/mnemo.db.
func dbFlagDefault() string {
	cfg, err := config.LoadConfig()
	if err != nil {
		return "./data/mnemo.db"
	}
	return cfg.Storage.DataPath + "/mnemo.db"
}

// openCoordinator opens the SQLite store at dbPath and wires a Coordinator
// with the deterministic embedding provider (wrapped in a circuit breaker)
// and, when cfg.Security.EncryptionKeyHex is set, an AES-GCM cipher.
func openCoordinator(dbPath string) (*engine.Coordinator, *sqlite.Driver, error) {
	d, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	cfg, err := config.LoadConfigFromDB(d.DB())
	if err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var ciph cipher.Cipher
	if cfg.Security.EncryptionKeyHex != "" {
		key, err := decodeEncryptionKey(cfg.Security.EncryptionKeyHex)
		if err != nil {
			d.Close()
			return nil, nil, fmt.Errorf("invalid MNEMO_ENCRYPTION_KEY: %w", err)
		}
		ciph, err = cipher.NewAESGCMCipher(key)
		if err != nil {
			d.Close()
			return nil, nil, fmt.Errorf("failed to initialize cipher: %w", err)
		}
	}

	embedder := embedding.NewCircuitBreakerProvider(
		embedding.NewDeterministicProvider(256),
		embedding.DefaultBreakerConfig(),
	)

	az := authz.New(d, d, d)

	coord, err := engine.New(d, embedder, ciph, az, engine.DefaultConfig(), nil)
	if err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("failed to build coordinator: %w", err)
	}
	return coord, d, nil
}

func runRemember(args []string) {
	fs := flag.NewFlagSet("remember", flag.ExitOnError)
	dbPath := fs.String("db", dbFlagDefault(), "path to the SQLite database")
	agent := fs.String("agent", "", "agent id (required)")
	content := fs.String("content", "", "memory content (required)")
	memType := fs.String("type", string(types.MemoryTypeEpisodic), "memory type: working, episodic, semantic, procedural")
	scope := fs.String("scope", string(types.ScopePrivate), "scope: private, shared, public, global")
	importance := fs.Float64("importance", 0.5, "importance in [0,1]")
	tags := fs.String("tags", "", "comma-separated tags")
	org := fs.String("org", "", "organization id")
	thread := fs.String("thread", "", "thread id")
	createdBy := fs.String("created-by", "", "provenance.created_by override")
	fs.Parse(args)

	if *agent == "" || *content == "" {
		fmt.Fprintln(os.Stderr, "remember: -agent and -content are required")
		os.Exit(1)
	}

	coord, d, err := openCoordinator(*dbPath)
	if err != nil {
		log.Fatalf("remember: %v", err)
	}
	defer d.Close()

	creator := *createdBy
	if creator == "" {
		creator = attribution.DetectCreator()
	}

	ctx := context.Background()
	result, err := coord.Remember(ctx, engine.RememberRequest{
		Content:    *content,
		Agent:      *agent,
		Org:        *org,
		Thread:     *thread,
		MemoryType: types.MemoryType(*memType),
		Scope:      types.Scope(*scope),
		Importance: importance,
		Tags:       splitTags(*tags),
		CreatedBy:  creator,
	})
	if err != nil {
		log.Fatalf("remember: %v", err)
	}

	fmt.Printf("id:            %s\n", result.ID)
	fmt.Printf("content_hash:  %s\n", result.ContentHash)
	fmt.Printf("status:        %s\n", result.Status)
	if result.Quarantined {
		fmt.Println("quarantined:   true")
	}
	for _, w := range result.Warnings {
		fmt.Printf("warning:       %s\n", w)
	}
}

func runRecall(args []string) {
	fs := flag.NewFlagSet("recall", flag.ExitOnError)
	dbPath := fs.String("db", dbFlagDefault(), "path to the SQLite database")
	principal := fs.String("principal", "", "caller id whose permissions gate results (required)")
	agent := fs.String("agent", "", "filter by agent id")
	query := fs.String("query", "", "query text")
	strategy := fs.String("strategy", engine.StrategyAuto, "exact, semantic, lexical, graph, hybrid, auto")
	limit := fs.Int("limit", 10, "max results")
	fs.Parse(args)

	if *principal == "" {
		fmt.Fprintln(os.Stderr, "recall: -principal is required")
		os.Exit(1)
	}

	coord, d, err := openCoordinator(*dbPath)
	if err != nil {
		log.Fatalf("recall: %v", err)
	}
	defer d.Close()

	result, err := coord.Recall(context.Background(), engine.RecallRequest{
		Principal: *principal,
		Agent:     *agent,
		Query:     *query,
		Strategy:  *strategy,
		Limit:     *limit,
	})
	if err != nil {
		log.Fatalf("recall: %v", err)
	}

	fmt.Printf("status: %s  pool_size: %d  ceiling_hit: %v\n\n", result.Status, result.PoolSize, result.CeilingHit)
	for i, item := range result.Items {
		fmt.Printf("%d. [%s] %s (score=%.4f, importance=%.2f)\n", i+1, item.ID, truncate(item.Content, 80), item.Score, item.Importance)
	}
	if len(result.Items) == 0 {
		fmt.Println("(no results)")
	}
}

func runForget(args []string) {
	fs := flag.NewFlagSet("forget", flag.ExitOnError)
	dbPath := fs.String("db", dbFlagDefault(), "path to the SQLite database")
	principal := fs.String("principal", "", "caller id (required; must hold Delete/Admin permission)")
	agent := fs.String("agent", "", "scope for criteria-based selection")
	ids := fs.String("ids", "", "comma-separated memory ids to target")
	strategy := fs.String("strategy", engine.ForgetSoftDelete, "soft_delete, hard_delete, decay, consolidate, archive")
	fs.Parse(args)

	if *principal == "" {
		fmt.Fprintln(os.Stderr, "forget: -principal is required")
		os.Exit(1)
	}

	coord, d, err := openCoordinator(*dbPath)
	if err != nil {
		log.Fatalf("forget: %v", err)
	}
	defer d.Close()

	result, err := coord.Forget(context.Background(), engine.ForgetRequest{
		Principal: *principal,
		Agent:     *agent,
		MemoryIDs: splitTags(*ids),
		Strategy:  *strategy,
	})
	if err != nil {
		log.Fatalf("forget: %v", err)
	}

	fmt.Printf("status:    %s\n", result.Status)
	fmt.Printf("forgotten: %d\n", len(result.Forgotten))
	for id, ferr := range result.Errors {
		fmt.Printf("error:     %s: %v\n", id, ferr)
	}
}

func runVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	dbPath := fs.String("db", dbFlagDefault(), "path to the SQLite database")
	agent := fs.String("agent", "", "agent id (required)")
	thread := fs.String("thread", "", "narrow verification to one thread")
	fs.Parse(args)

	if *agent == "" {
		fmt.Fprintln(os.Stderr, "verify: -agent is required")
		os.Exit(1)
	}

	coord, d, err := openCoordinator(*dbPath)
	if err != nil {
		log.Fatalf("verify: %v", err)
	}
	defer d.Close()

	result, err := coord.Verify(context.Background(), engine.VerifyRequest{Agent: *agent, Thread: *thread})
	if err != nil {
		log.Fatalf("verify: %v", err)
	}

	fmt.Printf("status:           %s\n", result.Status)
	fmt.Printf("valid:            %v\n", result.Valid)
	fmt.Printf("memory_chain:     %d/%d verified\n", result.VerifiedMemory, result.TotalMemory)
	fmt.Printf("event_chain:      %d/%d verified\n", result.VerifiedEvent, result.TotalEvent)
	if !result.Valid {
		fmt.Printf("first_broken_at:  %s\n", result.FirstBrokenAt)
		fmt.Printf("explained_gap:    %v\n", result.ExplainedGap)
		fmt.Printf("error:            %s\n", result.ErrorMessage)
		os.Exit(1)
	}
}

func runDecay(args []string) {
	fs := flag.NewFlagSet("decay", flag.ExitOnError)
	dbPath := fs.String("db", dbFlagDefault(), "path to the SQLite database")
	batchSize := fs.Int("batch-size", 200, "memories scanned per pass")
	rps := fs.Float64("rate", 50, "max memories updated per second")
	fs.Parse(args)

	d, err := sqlite.Open(*dbPath)
	if err != nil {
		log.Fatalf("decay: failed to open store: %v", err)
	}
	defer d.Close()

	limiter := rate.NewLimiter(rate.Limit(*rps), int(*rps)+1)
	stats, err := lifecycle.RunDecayPass(context.Background(), d, lifecycle.DefaultDecayThresholds(), *batchSize, limiter)
	if err != nil {
		log.Fatalf("decay: %v", err)
	}

	fmt.Printf("evaluated: %d\n", stats.Evaluated)
	fmt.Printf("archived:  %d\n", stats.Archived)
	fmt.Printf("forgotten: %d\n", stats.Forgotten)
}

func runBackup(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "backup: one of oneshot, list, health, restore, service is required")
		os.Exit(1)
	}

	sub := args[0]
	rest := args[1:]

	fs := flag.NewFlagSet("backup "+sub, flag.ExitOnError)
	dbPath := fs.String("db", dbFlagDefault(), "path to the SQLite database")
	backupDir := fs.String("backup-dir", "", "backup directory (overrides config)")
	interval := fs.Duration("interval", 0, "backup interval (service mode; overrides config)")
	verify := fs.Bool("verify", true, "verify backups after creation")
	restorePath := fs.String("path", "", "backup file to restore from")
	fs.Parse(rest)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("backup: failed to load configuration: %v", err)
	}

	bdir := cfg.Backup.BackupPath
	if *backupDir != "" {
		bdir = *backupDir
	}

	bi := 1 * time.Hour
	if cfg.Backup.BackupInterval != "" {
		if parsed, err := time.ParseDuration(cfg.Backup.BackupInterval); err == nil {
			bi = parsed
		}
	}
	if *interval > 0 {
		bi = *interval
	}

	service, err := backup.NewBackupService(backup.BackupConfig{
		DBPath:    *dbPath,
		BackupDir: bdir,
		Interval:  bi,
		Retention: backup.RetentionPolicy{
			Hourly:  cfg.Backup.BackupRetentionHourly,
			Daily:   cfg.Backup.BackupRetentionDaily,
			Weekly:  cfg.Backup.BackupRetentionWeekly,
			Monthly: cfg.Backup.BackupRetentionMonthly,
		},
		VerifyBackups: *verify,
	})
	if err != nil {
		log.Fatalf("backup: %v", err)
	}

	ctx := context.Background()
	switch sub {
	case "oneshot":
		result, err := service.BackupNow(ctx)
		if err != nil {
			log.Fatalf("backup oneshot: %v", err)
		}
		fmt.Printf("path:     %s\n", result.Path)
		fmt.Printf("size:     %s\n", humanize.Bytes(uint64(result.Size)))
		fmt.Printf("duration: %v\n", result.Duration)
		fmt.Printf("verified: %v\n", result.Verified)

	case "list":
		backups, err := service.ListBackups()
		if err != nil {
			log.Fatalf("backup list: %v", err)
		}
		if len(backups) == 0 {
			fmt.Println("(no backups found)")
			return
		}
		for i, b := range backups {
			fmt.Printf("%d. %s  %s  %s ago\n", i+1, b.Path, humanize.Bytes(uint64(b.Size)), humanize.Time(b.Timestamp))
		}

	case "health":
		health, err := service.HealthCheck()
		if err != nil {
			log.Fatalf("backup health: %v", err)
		}
		fmt.Printf("status:           %s\n", health.Status)
		if health.Message != "" {
			fmt.Printf("message:          %s\n", health.Message)
		}
		fmt.Printf("total_backups:    %d\n", health.TotalBackups)
		fmt.Printf("disk_space_used:  %s\n", humanize.Bytes(uint64(health.DiskSpaceUsed)))
		if !health.LastBackup.IsZero() {
			fmt.Printf("last_backup:      %s\n", humanize.Time(health.LastBackup))
		} else {
			fmt.Println("last_backup:      never")
		}
		if health.Status != "healthy" {
			os.Exit(1)
		}

	case "restore":
		if *restorePath == "" {
			fmt.Fprintln(os.Stderr, "backup restore: -path is required")
			os.Exit(1)
		}
		if err := service.RestoreBackup(ctx, *restorePath); err != nil {
			log.Fatalf("backup restore: %v", err)
		}
		fmt.Println("restore complete")

	case "service":
		runBackupService(ctx, service)

	default:
		fmt.Fprintf(os.Stderr, "backup: unrecognized subcommand %q\n", sub)
		os.Exit(1)
	}
}

func runBackupService(ctx context.Context, service *backup.BackupService) {
	go func() {
		if err := service.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("backup service error: %v", err)
		}
	}()

	log.Println("backup service started, press Ctrl+C to stop")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutting down backup service...")
	if err := service.Stop(); err != nil {
		log.Printf("warning: %v", err)
	}
}

// decodeEncryptionKey parses a 64-character hex string into the 32-byte
// key internal/cipher.AESGCMCipher requires.
func decodeEncryptionKey(hexKey string) ([32]byte, error) {
	var key [32]byte
	decoded, err := hex.DecodeString(hexKey)
	if err != nil {
		return key, fmt.Errorf("not valid hex: %w", err)
	}
	if len(decoded) != 32 {
		return key, fmt.Errorf("expected 32 bytes, got %d", len(decoded))
	}
	copy(key[:], decoded)
	return key, nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
