package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	rediscache "github.com/strogmv/notifyd/internal/adapter/cache/redis"
	"github.com/strogmv/notifyd/internal/adapter/events/redisstream"
	"github.com/strogmv/notifyd/internal/config"
	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/pkg/auth"
	"github.com/strogmv/notifyd/internal/pkg/rbac"
)

// runPublish appends a sample inbound event, encoded the way upstream
// services write them.
func runPublish(args []string) int {
	if len(args) == 0 {
		fmt.Println("Usage: notifyd publish <user|session|assessment|proctoring> [flags]")
		return 1
	}
	kind := args[0]

	fs := flag.NewFlagSet("publish "+kind, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	userID := fs.String("user", "user-1", "recipient user id")
	email := fs.String("email", "user1@example.com", "recipient email")
	username := fs.String("username", "student", "recipient username")
	assessment := fs.String("assessment", "Sample assessment", "assessment name")
	score := fs.Float64("score", 87.5, "session score")
	proctors := fs.String("proctors", "proctor-1", "comma-separated proctor ids")
	if err := fs.Parse(args[1:]); err != nil {
		fmt.Printf("publish FAILED: %v\n", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("publish FAILED: %v\n", err)
		return 1
	}

	now := time.Now().UTC()
	var (
		stream string
		event  domain.Event
	)
	switch kind {
	case "user":
		stream = cfg.StreamUserEvents
		event = domain.UserRegistered{
			UserID:    *userID,
			Username:  *username,
			Email:     *email,
			FirstName: "Sample",
			LastName:  "User",
		}
	case "session":
		stream = cfg.StreamAssessmentEvents
		event = domain.SessionCompleted{
			UserID:         *userID,
			Username:       *username,
			Email:          *email,
			SessionID:      uuid.NewString(),
			AssessmentName: *assessment,
			CompletionTime: now.Format(time.RFC3339),
			Score:          *score,
			Status:         passFail(*score),
		}
	case "assessment":
		stream = cfg.StreamAssessmentEvents
		event = domain.AssessmentPublished{
			AssessmentID:   uuid.NewString(),
			AssessmentName: *assessment,
			Duration:       60,
			DueDate:        now.Add(7 * 24 * time.Hour).Format("2006-01-02"),
			AssignedUsers:  []domain.AssignedUser{{UserID: *userID, Username: *username, Email: *email}},
		}
	case "proctoring":
		stream = cfg.StreamProctoringEvents
		event = domain.ProctoringViolation{
			UserID:        *userID,
			Username:      *username,
			SessionID:     uuid.NewString(),
			ViolationType: "TAB_SWITCH",
			Severity:      "HIGH",
			ProctorIDs:    splitList(*proctors),
		}
	default:
		fmt.Printf("Unknown event kind: %s\n", kind)
		return 1
	}

	client := rediscache.NewClient(rediscache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, 0)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := redisstream.NewPublisher(client, cfg.StreamNotificationEvents).PublishEvent(ctx, stream, event)
	if err != nil {
		fmt.Printf("publish FAILED: %v\n", err)
		return 1
	}
	fmt.Printf("Published %s event %s to %s\n", kind, id, stream)
	return 0
}

// runToken prints a signed access token.
func runToken(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	userID := fs.String("user", "", "subject user id")
	email := fs.String("email", "", "email claim")
	admin := fs.Bool("admin", false, "grant the ADMIN role")
	if err := fs.Parse(args); err != nil || *userID == "" {
		fmt.Println("Usage: notifyd token -user ID [-email ADDR] [-admin]")
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("token FAILED: %v\n", err)
		return 1
	}
	roles := []string{rbac.RoleUser}
	if *admin {
		roles = append(roles, rbac.RoleAdmin)
	}
	signer := auth.NewSigner(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	token, err := signer.IssueAccessToken(auth.Identity{UserID: *userID, Email: *email, Roles: roles})
	if err != nil {
		fmt.Printf("token FAILED: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}

func passFail(score float64) string {
	if score >= 60 {
		return "PASSED"
	}
	return "FAILED"
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
