// Package preflight provides readiness checks for the directories and the
// OpenAI account that lectern depends on.
//
// lecternd runs RunAll at startup and logs failures as warnings; the CLI
// "lectern preflight" command renders the same results as a table.
package preflight
