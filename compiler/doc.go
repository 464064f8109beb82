/*

Process of code generation

Intermediate Representation (ir) ->
	instsel (rule) ->
Assembly (asm, virtual registers) ->
	liveness ->
Register Allocation ->
Assembly (asm, machine registers) ->
	render ->
Assembly Text (.intel_syntax noprefix)

Rules and programs are read from yaml (load).

*/
package compiler
