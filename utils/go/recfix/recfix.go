// Package recfix is a CLI utility that finalizes recordings
// left unfinished by a crash or power loss.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"sync"

	"flashrec/pkg/log"
	"flashrec/pkg/storage"
	"flashrec/pkg/video/encapsuler"
)

const usage = `finalize unfinished recordings
example: recfix -env ./configs/env.yaml`

func main() {
	if err := run(); err != nil {
		stdlog.Fatal(err)
	}
}

// ErrLowDiskSpace not enough free space to write moov boxes.
var ErrLowDiskSpace = errors.New("low disk space")

func run() error {
	envFlag := flag.String("env", "", "path to env.yaml")
	flag.Parse()
	if *envFlag == "" {
		fmt.Println(usage)
		flag.PrintDefaults()
		return nil
	}

	env, err := storage.ReadConfigEnv(*envFlag)
	if err != nil {
		return err
	}
	if err := env.PrepareEnvironment(); err != nil {
		return fmt.Errorf("prepare environment: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	defer func() {
		cancel()
		wg.Wait()
	}()

	logger := log.NewLogger(wg)
	logger.Start(ctx)
	go logger.LogToStdout(ctx)

	if env.LogDB != "" {
		logDB := log.NewDB(env.LogDB, wg)
		if err := logDB.Init(ctx); err != nil {
			return fmt.Errorf("init log database: %w", err)
		}
		go logDB.SaveLogs(ctx, logger)
	}

	return fixAll(env, logger, storage.GetDiskUsage)
}

func fixAll(env *storage.ConfigEnv, logger *log.Logger, diskUsage storage.DiskUsageFunc) error {
	du, err := diskUsage(env.RecordingsDir)
	if err != nil {
		return fmt.Errorf("disk usage: %w", err)
	}
	if du.Free < env.MinFreeBytes() {
		return fmt.Errorf("%w: %v free, %vMB required",
			ErrLowDiskSpace, du.Formatted, env.MinFreeMB)
	}

	found, err := storage.FindUnfinished(os.DirFS(env.RecordingsDir), env.RecordingsDir)
	if err != nil {
		return err
	}

	var recordings []string
	for _, u := range found {
		stale, err := isStale(u)
		if err != nil {
			logger.Error().Src("recfix").Recording(u.MediaPath).Msgf("%v", err)
			continue
		}
		if !stale {
			recordings = append(recordings, u.IndexPath)
			continue
		}
		if err := os.Remove(u.IndexPath); err != nil {
			logger.Error().Src("recfix").Recording(u.MediaPath).
				Msgf("remove stale index: %v", err)
			continue
		}
		logger.Info().Src("recfix").Recording(u.MediaPath).Msg("removed stale index")
	}

	nRecordings := len(recordings)
	fmt.Printf("Found %v unfinished recordings.\n", nRecordings)

	jobs := make(chan string)
	chResults := make(chan result, nRecordings)
	for i := 0; i < env.Workers; i++ {
		go func() {
			for indexPath := range jobs {
				chResults <- result{
					recording: indexPath,
					err:       encapsuler.FixInfoFile(indexPath, encapsuler.WithLogger(logger)),
				}
			}
		}()
	}
	go func() {
		for _, indexPath := range recordings {
			jobs <- indexPath
		}
		close(jobs)
	}()

	var nFailed int
	for i := 1; i <= nRecordings; i++ {
		result := <-chResults
		fmt.Printf("[%v/%v]", i, nRecordings)
		if result.err != nil {
			nFailed++
			fmt.Printf("[ERR] %v %v\n", result.recording, result.err)
			continue
		}
		fmt.Printf("[OK] %v\n", result.recording)
	}
	if nFailed != 0 {
		return fmt.Errorf("%v of %v recordings could not be fixed", nFailed, nRecordings)
	}
	return nil
}

type result struct {
	recording string
	err       error
}

// isStale returns true if the index has nothing left to fix.
func isStale(u storage.Unfinished) (bool, error) {
	if !u.HasMedia {
		return true, nil
	}
	return encapsuler.IsFinalized(u.MediaPath)
}
