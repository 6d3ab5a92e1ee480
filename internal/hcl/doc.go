// Package hcl provides the concrete HCL implementation of the config.Loader
// interface. A pipeline is written as `node "<kind>" "<id>" {}` blocks and
// `edge {}` blocks, possibly spread over several files:
//
//	node "prompt_input" "question" {
//	  value = "What is the capital of France?"
//	}
//
//	node "text_generator" "answer" {
//	  model = "gpt-4o-mini"
//	}
//
//	edge {
//	  from = "question"
//	  to   = "answer"
//	}
//
// Node attributes are evaluated at load time. They may reference `env.NAME`
// and call file(path) or filebase64(path), with relative paths resolved
// against the declaring file's directory.
package hcl
