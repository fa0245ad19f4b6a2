package main

import (
	"time"
	"washmon-backend/lib/platforms/pay2wash"
)

type PortalConfig struct {
	BaseUrl        string `json:"base_url"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (c PortalConfig) ClientOptions() pay2wash.ClientOptions {
	return pay2wash.ClientOptions{
		BaseUrl:  c.BaseUrl,
		Email:    c.Email,
		Password: c.Password,
		Timeout:  time.Duration(c.TimeoutSeconds) * time.Second,
	}
}

type MonitorConfig struct {
	PollIntervalSeconds int `json:"poll_interval_seconds"`
	MaxPollFailures     int `json:"max_poll_failures"`
}

func (c MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

type StoreConfig struct {
	// File is the sqlite database path; empty disables the
	// observation log.
	File string `json:"file"`
}

type MetricsConfig struct {
	Port int `json:"port"`
}

type Config struct {
	Portals []PortalConfig `json:"portals"`
	Monitor MonitorConfig  `json:"monitor"`
	Store   StoreConfig    `json:"store"`
	Metrics MetricsConfig  `json:"metrics"`
}
