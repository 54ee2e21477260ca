package config

import "fmt"

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentAttemptKey returns the Redis key holding a student's durable
// attempt snapshot. One fixed slot per student: one attempt at a time.
func (r *CacheKeyStruct) StudentAttemptKey(studentID int) string {
	return fmt.Sprintf("student:%d:attempt", studentID)
}

// StudentAttemptPattern matches all attempt snapshot keys; used by the
// sweeper to scan for stale slots.
func (r *CacheKeyStruct) StudentAttemptPattern() string {
	return "student:*:attempt"
}

var CacheKey = NewCacheKeyStruct()
