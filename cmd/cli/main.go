package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/glizzus/cronrelay/internal/config"
	"github.com/glizzus/cronrelay/internal/datalayer"
	"github.com/glizzus/cronrelay/internal/relay"
	"github.com/glizzus/cronrelay/internal/repository"
	"github.com/glizzus/cronrelay/internal/schedule"
	"github.com/glizzus/cronrelay/internal/scheduler"
)

var appFlag = &cli.StringFlag{
	Name:     "app",
	Usage:    "App whose queue to operate on",
	EnvVars:  []string{"SCHEDULER_APP"},
	Required: true,
}

var prefixFlag = &cli.StringFlag{
	Name:    "prefix",
	Usage:   "Key prefix of the job queue",
	EnvVars: []string{"SCHEDULER_KEY_PREFIX"},
	Value:   "bull",
}

func newRedisClient(ctx context.Context) (*redis.Client, error) {
	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load redis config: %w", err)
	}
	rdb := redis.NewClient(redisConfig.Options())
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func withScheduler(c *cli.Context, fn func(s *scheduler.Scheduler) error) error {
	rdb, err := newRedisClient(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer rdb.Close()

	s := scheduler.New(rdb, scheduler.Options{
		App:       c.String("app"),
		KeyPrefix: c.String("prefix"),
	})
	return fn(s)
}

// parseParam treats valid JSON as-is and anything else as a string.
func parseParam(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	encoded, _ := json.Marshal(s)
	return encoded
}

func parsePayload(pairs []string) (map[string]any, error) {
	payload := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("payload entry %q is not key=value", pair)
		}
		payload[k] = parseParam(v)
	}
	return payload, nil
}

func listAction(c *cli.Context) error {
	return withScheduler(c, func(s *scheduler.Scheduler) error {
		entries, err := s.List(c.Context)
		if err != nil {
			return cli.Exit("Failed to list tasks: "+err.Error(), 1)
		}
		queue := s.Queue()
		if len(entries) == 0 {
			log.Printf("No pending tasks found in queue %s (%s).", queue.Name(), queue.KeyPattern())
			return nil
		}
		log.Printf("%d tasks in queue %s", len(entries), queue.Name())
		for _, entry := range entries {
			task, err := entry.Task()
			if err != nil {
				fmt.Printf("%s\t<unreadable: %v>\n", entry.Key, err)
				continue
			}
			fmt.Printf("%s\tmethod=%s rule=%q uniqueID=%q delay=%sms finishedOn=%s\n",
				entry.Key, task.Method, task.Rule, task.UniqueID, entry.Fields["delay"], entry.Fields["finishedOn"])
		}
		return nil
	})
}

func deleteAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("Please provide at least one key to delete", 1)
	}
	return withScheduler(c, func(s *scheduler.Scheduler) error {
		for _, key := range c.Args().Slice() {
			if err := s.Delete(c.Context, key); err != nil {
				return cli.Exit("Failed to delete "+key+": "+err.Error(), 1)
			}
			log.Printf("Deleted %s", key)
		}
		return nil
	})
}

func publishAction(c *cli.Context) error {
	params := make([]json.RawMessage, 0, len(c.StringSlice("param")))
	for _, p := range c.StringSlice("param") {
		params = append(params, parseParam(p))
	}
	task := scheduler.Task{
		Method:   c.String("method"),
		Params:   params,
		Rule:     c.String("rule"),
		UniqueID: c.String("unique-id"),
	}
	return withScheduler(c, func(s *scheduler.Scheduler) error {
		receipt, err := s.Publish(c.Context, task)
		if err != nil {
			return cli.Exit("Failed to publish task: "+err.Error(), 1)
		}
		log.Printf("Published job %s (%s), due in %s", receipt.JobID, receipt.Key, receipt.Delay)
		return nil
	})
}

func announceAction(c *cli.Context) error {
	payload, err := parsePayload(c.StringSlice("payload"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	rdb, err := newRedisClient(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer rdb.Close()

	msg, err := relay.Announce(c.Context, rdb, c.String("relay-channel"), relay.Announcement{
		App:     c.String("app"),
		Name:    c.String("name"),
		Channel: c.String("channel"),
		TTL:     c.Int64("ttl"),
		Payload: payload,
	})
	if err != nil {
		return cli.Exit("Failed to announce: "+err.Error(), 1)
	}
	log.Printf("Announced %s", msg)
	return nil
}

func listenAction(c *cli.Context) error {
	rdb, err := newRedisClient(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer rdb.Close()

	channel := c.String("channel")
	return relay.Listen(c.Context, rdb, channel,
		func() { log.Printf("Listening on %s", channel) },
		func(_ context.Context, msg json.RawMessage) error {
			fmt.Println(string(msg))
			return nil
		},
	)
}

func historyAction(c *cli.Context) error {
	postgresConfig, err := config.NewPostgresConfigFromEnv()
	if err != nil {
		return cli.Exit("Failed to load postgres config: "+err.Error(), 1)
	}
	pool, err := datalayer.NewPostgresPool(c.Context, postgresConfig)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer pool.Close()
	if err := datalayer.MigratePostgres(pool); err != nil {
		return cli.Exit("Failed to migrate postgres: "+err.Error(), 1)
	}

	repo := repository.NewPostgresFiringRepository(pool)
	firings, err := repo.List(c.Context, c.String("app"), c.String("method"), c.Int("limit"))
	if err != nil {
		return cli.Exit("Failed to retrieve history: "+err.Error(), 1)
	}
	if len(firings) == 0 {
		log.Println("No firings recorded for the specified app.")
		return nil
	}
	for _, f := range firings {
		status := "ok"
		if f.Error != "" {
			status = "error: " + f.Error
		}
		fmt.Printf("%s\tjob=%s method=%s uniqueID=%q rule=%q %s\n",
			f.FiredAt.Format(time.RFC3339), f.JobID, f.Method, f.UniqueID, f.Rule, status)
	}
	return nil
}

func nextAction(c *cli.Context) error {
	runs, err := schedule.NextRunTimesAfter(c.String("rule"), time.Now(), c.Int("count"))
	if err != nil {
		return cli.Exit("Failed to evaluate rule: "+err.Error(), 1)
	}
	for _, run := range runs {
		fmt.Println(schedule.FormatDate(run))
	}
	return nil
}

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	app := &cli.App{
		Name:        "cronrelay-cli",
		Description: "An operator CLI for inspecting and feeding cronrelay queues",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List every pending task of an app",
				Flags:  []cli.Flag{appFlag, prefixFlag},
				Action: listAction,
			},
			{
				Name:      "delete",
				Usage:     "Delete pending tasks by key",
				ArgsUsage: "KEY...",
				Flags:     []cli.Flag{appFlag, prefixFlag},
				Action:    deleteAction,
			},
			{
				Name:  "publish",
				Usage: "Publish a task into an app's queue",
				Flags: []cli.Flag{
					appFlag,
					prefixFlag,
					&cli.StringFlag{Name: "method", Usage: "Registered handler name", Required: true},
					&cli.StringFlag{Name: "rule", Usage: "Cron expression or timestamp; empty runs immediately"},
					&cli.StringFlag{Name: "unique-id", Usage: "Replace pending tasks with the same id"},
					&cli.StringSliceFlag{Name: "param", Usage: "Handler parameter as JSON; repeat for more"},
				},
				Action: publishAction,
			},
			{
				Name:  "announce",
				Usage: "Register a delayed notification with the relay",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "app", Usage: "Registering app", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Name of the notification"},
					&cli.StringFlag{Name: "channel", Usage: "Channel the notification comes back on", Required: true},
					&cli.Int64Flag{Name: "ttl", Usage: "Delay in seconds", Value: 60},
					&cli.StringSliceFlag{Name: "payload", Usage: "Extra key=value field; repeat for more"},
					&cli.StringFlag{
						Name:    "relay-channel",
						Usage:   "Channel the relay listens on",
						EnvVars: []string{"RELAY_CHANNEL"},
						Value:   "cron_task_queue",
					},
				},
				Action: announceAction,
			},
			{
				Name:  "listen",
				Usage: "Print notifications arriving on a channel",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "channel", Usage: "Channel to subscribe to", Required: true},
				},
				Action: listenAction,
			},
			{
				Name:  "next",
				Usage: "Preview the upcoming instants of a rule",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "rule", Usage: "Cron expression or timestamp", Required: true},
					&cli.IntFlag{Name: "count", Usage: "How many instants to print", Value: 5},
				},
				Action: nextAction,
			},
			{
				Name:  "history",
				Usage: "List recorded firings of an app",
				Flags: []cli.Flag{
					appFlag,
					&cli.StringFlag{Name: "method", Usage: "Only show this method"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum rows", Value: 50},
				},
				Action: historyAction,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
