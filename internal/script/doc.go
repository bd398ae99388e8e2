// Package script holds parsed action scripts (funscripts) and answers
// time-based lookups against them.
//
// A Script is immutable after construction. Actions are stored sorted by
// timestamp ascending regardless of the order in the source file, so every
// lookup is a binary search followed by a short linear scan.
//
// # File Format
//
// A funscript is a JSON object with at least an "actions" array:
//
//	{
//	  "version": "1.0",
//	  "inverted": false,
//	  "range": 90,
//	  "metadata": {"title": "...", "creator": "...", "tags": ["..."]},
//	  "actions": [{"at": 1000, "pos": 0}, {"at": 1050, "pos": 80}]
//	}
//
// "at" is milliseconds from script-relative zero and must be a
// non-negative integer. "pos" is a number, nominally in [0, 100].
// Everything except "actions" is optional. Structural problems are
// reported as *ParseError and never panic.
package script
