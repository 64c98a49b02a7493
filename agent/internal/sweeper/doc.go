// Package sweeper replays spooled payloads.
//
// A sweep walks the spool oldest first and makes one upload attempt per entry,
// removing each entry only after it was delivered. The first failed upload
// ends the sweep: later entries wait for the next cycle so delivery stays in
// arrival order and a down collector is not hit once per spooled file.
package sweeper
