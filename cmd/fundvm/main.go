// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/fundvm"
)

const (
	dbDirKey           = "db-dir"
	httpAddrKey        = "http-addr"
	adminKey           = "admin"
	treasuryKey        = "treasury"
	componentIDKey     = "component-id"
	allowEarlyKey      = "allow-early-finalize"
	minVotingPeriodKey = "min-voting-period"
	genesisKey         = "genesis"
)

func main() {
	if err := command().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fundvm",
		Short: "Runs a milestone-gated crowdfunding VM",
		RunE:  runFunc,
	}
	flags := cmd.Flags()
	flags.String(dbDirKey, "", "database directory; empty runs in memory")
	flags.String(httpAddrKey, ":9750", "address the JSON-RPC server listens on")
	flags.StringSlice(adminKey, nil, "administrator address, repeatable")
	flags.String(treasuryKey, "", "treasury address receiving platform fees")
	flags.String(componentIDKey, "", "deployment component id seeding derived identities")
	flags.Bool(allowEarlyKey, false, "allow finalizing proposals before voting ends once the outcome is locked")
	flags.Int64(minVotingPeriodKey, 0, "minimum proposal voting period in seconds; 0 keeps the 24h default")
	flags.String(genesisKey, "", "path to a JSON file with genesis allocations")
	return cmd
}

func runFunc(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	logger := log.NewLogger("fundvm")

	config, err := configFromFlags(cmd)
	if err != nil {
		return err
	}

	dbDir, err := flags.GetString(dbDirKey)
	if err != nil {
		return err
	}
	var db database.Database
	if dbDir == "" {
		logger.Info("using in-memory database")
		db = memdb.New()
	} else {
		db, err = badgerdb.New(dbDir, nil, "", nil)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
	}

	vm, err := fundvm.New(db, config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vm: %w", err)
	}

	handlers, err := vm.CreateHandlers(cmd.Context())
	if err != nil {
		return err
	}
	router := mux.NewRouter()
	for path, handler := range handlers {
		router.Handle("/ext/fund"+path, handler)
	}
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		report, err := vm.HealthCheck(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(report)
	})

	httpAddr, err := flags.GetString(httpAddrKey)
	if err != nil {
		return err
	}
	logger.Info("serving", log.String("addr", httpAddr))
	return http.ListenAndServe(httpAddr, router)
}

func configFromFlags(cmd *cobra.Command) (fundvm.Config, error) {
	flags := cmd.Flags()
	config := fundvm.Config{}

	componentIDStr, err := flags.GetString(componentIDKey)
	if err != nil {
		return config, err
	}
	if componentIDStr != "" {
		config.ComponentID, err = ids.FromString(componentIDStr)
		if err != nil {
			return config, fmt.Errorf("invalid component id: %w", err)
		}
	}

	adminStrs, err := flags.GetStringSlice(adminKey)
	if err != nil {
		return config, err
	}
	for _, s := range adminStrs {
		admin, err := ids.ShortFromString(s)
		if err != nil {
			return config, fmt.Errorf("invalid admin address %q: %w", s, err)
		}
		config.Admins = append(config.Admins, admin)
	}

	treasuryStr, err := flags.GetString(treasuryKey)
	if err != nil {
		return config, err
	}
	if treasuryStr != "" {
		config.Treasury, err = ids.ShortFromString(treasuryStr)
		if err != nil {
			return config, fmt.Errorf("invalid treasury address: %w", err)
		}
	}

	config.AllowEarlyFinalize, err = flags.GetBool(allowEarlyKey)
	if err != nil {
		return config, err
	}
	config.MinVotingPeriod, err = flags.GetInt64(minVotingPeriodKey)
	if err != nil {
		return config, err
	}

	genesisPath, err := flags.GetString(genesisKey)
	if err != nil {
		return config, err
	}
	if genesisPath != "" {
		config.GenesisAllocations, err = readGenesis(genesisPath)
		if err != nil {
			return config, err
		}
	}
	return config, nil
}

type genesisAllocation struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

func readGenesis(path string) ([]fundvm.Allocation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file: %w", err)
	}
	var entries []genesisAllocation
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("invalid genesis file: %w", err)
	}
	allocations := make([]fundvm.Allocation, 0, len(entries))
	for _, entry := range entries {
		addr, err := ids.ShortFromString(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid genesis address %q: %w", entry.Address, err)
		}
		allocations = append(allocations, fundvm.Allocation{
			Address: addr,
			Amount:  entry.Amount,
		})
	}
	return allocations, nil
}
