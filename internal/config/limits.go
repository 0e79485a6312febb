package config

const (
	// MaxContentLength is the maximum length (in runes) of a message body.
	// Generated assistant turns can be long; anything larger than this is
	// almost certainly a client bug.
	MaxContentLength = 100000

	// MaxIDLength is the maximum length for message, thread and branch ids.
	// Store-assigned ids are UUIDs; thread ids come from the owning service.
	MaxIDLength = 128

	// MaxErrorLength is the maximum length for a recorded generation error.
	MaxErrorLength = 2000

	// MaxAncestryScanDepth bounds the configurable backward scan. Matches the
	// recursion guard of the Postgres parent-chain CTE.
	MaxAncestryScanDepth = 1000
)
