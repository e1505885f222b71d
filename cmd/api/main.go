package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"school-central-api/core"
)

func main() {
	cfg := core.Load()
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	userRepo := core.NewPgUserRepository(db)
	authService := core.NewRepositoryAuthService(userRepo)

	codec, err := core.NewTokenCodec(time.Duration(cfg.TokenTTLHours) * time.Hour)
	if err != nil {
		log.Fatalf("failed to initialize token codec: %v", err)
	}

	rules := core.DefaultAccessRules()
	if cfg.AccessRulesPath != "" {
		if rules, err = core.LoadAccessRules(cfg.AccessRulesPath); err != nil {
			log.Fatalf("failed to load access rules: %v", err)
		}
	}
	policy, err := core.NewAccessPolicy(rules)
	if err != nil {
		log.Fatalf("failed to build access policy: %v", err)
	}
	for _, rule := range policy.Rules() {
		log.Printf("access rule %s -> %v", rule.Pattern, rule.Roles)
	}

	throttle := core.NewLoginThrottle(redisClient, cfg.LoginMaxFailures, time.Duration(cfg.LoginFailureWindowMin)*time.Minute)
	activity := core.NewActivityRecorder(redisClient)

	if err := core.BootstrapAdmin(ctx, userRepo, cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	router := core.NewRouter(cfg, authService, codec, policy, userRepo, throttle, activity)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting api server on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
