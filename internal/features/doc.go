// Package features is the static feature registry: it maps a product feature
// id to the run names its thread roots are recorded under. The registry is
// configuration; nothing in it is computed from trace data.
//
// Extra features can be loaded from YAML or TOML files:
//
//	features:
//	  - id: socratic_sensei
//	    name: Socratic Sensei
//	    run_names: [socratic_chat_start, socratic_chat_message]
//	    cross_trace: false
package features
