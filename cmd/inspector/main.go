package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/TaroHarado/copytrade-key/internal/config"
	"github.com/TaroHarado/copytrade-key/internal/repository"
	"github.com/TaroHarado/copytrade-key/internal/service"
)

// Operator tool: dumps recent signing attempts from the audit store.
func main() {
	userID := flag.Int64("user", 0, "filter by user id")
	sigType := flag.String("type", "", "filter by signature type (order, allowance, transfer)")
	limit := flag.Int("limit", 50, "max rows")
	failedOnly := flag.Bool("failed", false, "show only failed attempts")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := repository.Open(cfg.Database.AuditDSN)
	if err != nil {
		log.Fatalf("Failed to connect to audit database: %v", err)
	}
	repo := repository.NewPostgresAuditRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, err := repo.List(ctx, service.AuditFilter{
		UserID:        *userID,
		SignatureType: *sigType,
		Limit:         *limit,
	})
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tTYPE\tUSER\tTARGET\tOK\tAMOUNT\tERROR")
	for _, rec := range records {
		if *failedOnly && rec.Success {
			continue
		}
		target := "-"
		if rec.TargetActivityID.Valid {
			target = fmt.Sprintf("%d", rec.TargetActivityID.Int64)
		}
		amount := "-"
		if rec.AmountUSDC.Valid {
			amount = fmt.Sprintf("%.2f", rec.AmountUSDC.Float64)
		}
		errMsg := ""
		if rec.Error.Valid {
			errMsg = rec.Error.String
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%t\t%s\t%s\n",
			rec.ID,
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.SignatureType,
			rec.UserID,
			target,
			rec.Success,
			amount,
			errMsg)
	}
	w.Flush()
}
