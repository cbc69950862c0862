package models

import "time"

// JokeRecord is one joke as returned by the API plus the moment it was captured.
type JokeRecord struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Setup     string    `json:"setup"`
	Punchline string    `json:"punchline"`
	Timestamp time.Time `json:"timestamp"`
}

type RunStatus string

const (
	RunSucceeded RunStatus = "success"
	RunFailed    RunStatus = "failed"
)

// Stage names, in execution order.
const (
	StageCreateTable = "create_table"
	StageFetchJokes  = "fetch_and_store_jokes"
	StageInsertJokes = "insert_jokes"
)
