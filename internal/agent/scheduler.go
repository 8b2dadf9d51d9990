package agent

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rahul/conduit/internal/store"
	"github.com/rahul/conduit/internal/tools"
)

const DefaultOverdueSpec = "0 9 * * *"

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type OverdueSource interface {
	OverdueTasks(ctx context.Context, now time.Time) ([]store.Task, error)
}

// Scheduler posts a digest of overdue tasks on a cron schedule. Each chat
// gets the tasks created in it; tasks without a chat go to DigestChat.
type Scheduler struct {
	Tasks      OverdueSource
	Gateway    tools.Messenger
	DigestChat string
	Now        func() time.Time

	spec     string
	schedule cron.Schedule
}

func NewScheduler(tasks OverdueSource, gateway tools.Messenger, spec, digestChat string) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultOverdueSpec
	}
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse overdue schedule %q: %w", spec, err)
	}
	return &Scheduler{
		Tasks:      tasks,
		Gateway:    gateway,
		DigestChat: digestChat,
		Now:        time.Now,
		spec:       spec,
		schedule:   schedule,
	}, nil
}

// Next returns the next digest time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Start runs the schedule until ctx is cancelled, then waits for a digest in
// progress to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(cron.WithParser(cronParser))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		if _, err := s.RunOnce(ctx); err != nil {
			log.Printf("overdue digest failed: %v", err)
		}
	}))

	log.Printf("Task scheduler started (%s)", s.spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// RunOnce sends the digests due now and returns how many chats were
// notified. Delivery failures for one chat do not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	overdue, err := s.Tasks.OverdueTasks(ctx, s.Now())
	if err != nil {
		return 0, fmt.Errorf("load overdue tasks: %w", err)
	}

	byChat := make(map[string][]store.Task)
	for _, task := range overdue {
		chatID := task.ChatID
		if chatID == "" {
			chatID = s.DigestChat
		}
		if chatID == "" {
			continue
		}
		byChat[chatID] = append(byChat[chatID], task)
	}

	chats := make([]string, 0, len(byChat))
	for chatID := range byChat {
		chats = append(chats, chatID)
	}
	sort.Strings(chats)

	sent := 0
	for _, chatID := range chats {
		if s.Gateway == nil {
			break
		}
		if err := s.Gateway.Send(ctx, chatID, "⏰ "+tools.Digest(byChat[chatID])); err != nil {
			log.Printf("overdue digest to %s failed: %v", chatID, err)
			continue
		}
		sent++
	}
	return sent, nil
}
