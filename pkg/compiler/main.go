// Package compiler provides the ice9 lexer, parser, semantic checker, tree
// optimizer and TM code generator.
//
// Pipeline: ice9 source → Lex → Parse → Check → OptimizeAST → Generate →
// (optimize.Optimizer) → TM instructions
package compiler
