// Package compiler translates the stack language into x86-64 NASM.
//
// Pipeline: source → Lex (macros, INCLUDE) → NewProgram → Check →
// ResolveBlocks → Generate → asm.Artifact
package compiler
