package x86

type (
	Mnemonic uint8

	// Class tells which operands of an instruction are read and which are written.
	Class uint8
)

const (
	// Default: first operand is written, the rest are read.
	Default Class = iota
	// InputsOnly: every operand is read, nothing is written.
	InputsOnly
	// InPlace: first operand is read and written, the rest are read.
	InPlace
)

const (
	BadMnemonic Mnemonic = iota

	MOV
	MOVZX
	MOVSX
	LEA
	PUSH
	POP

	ADD
	SUB
	IMUL
	IDIV
	AND
	OR
	XOR
	SAL
	SAR
	SHL
	SHR
	NEG
	NOT
	INC
	DEC
	CQO

	CMP
	TEST
	SETE
	SETNE
	SETL
	SETLE
	SETG
	SETGE

	JMP
	JE
	JNE
	JL
	JLE
	JG
	JGE
	JZ
	JNZ
	CALL
	RET
	LEAVE
	NOP

	numMnemonics
)

var mnemonicNames = [numMnemonics]string{
	BadMnemonic: "bad",

	MOV:   "mov",
	MOVZX: "movzx",
	MOVSX: "movsx",
	LEA:   "lea",
	PUSH:  "push",
	POP:   "pop",

	ADD:  "add",
	SUB:  "sub",
	IMUL: "imul",
	IDIV: "idiv",
	AND:  "and",
	OR:   "or",
	XOR:  "xor",
	SAL:  "sal",
	SAR:  "sar",
	SHL:  "shl",
	SHR:  "shr",
	NEG:  "neg",
	NOT:  "not",
	INC:  "inc",
	DEC:  "dec",
	CQO:  "cqo",

	CMP:   "cmp",
	TEST:  "test",
	SETE:  "sete",
	SETNE: "setne",
	SETL:  "setl",
	SETLE: "setle",
	SETG:  "setg",
	SETGE: "setge",

	JMP:   "jmp",
	JE:    "je",
	JNE:   "jne",
	JL:    "jl",
	JLE:   "jle",
	JG:    "jg",
	JGE:   "jge",
	JZ:    "jz",
	JNZ:   "jnz",
	CALL:  "call",
	RET:   "ret",
	LEAVE: "leave",
	NOP:   "nop",
}

var classes = [numMnemonics]Class{
	CMP:  InputsOnly,
	TEST: InputsOnly,
	PUSH: InputsOnly,

	ADD:  InPlace,
	SUB:  InPlace,
	IMUL: InPlace,
	IDIV: InPlace,
	AND:  InPlace,
	OR:   InPlace,
	XOR:  InPlace,
	SAL:  InPlace,
	SAR:  InPlace,
	SHL:  InPlace,
	SHR:  InPlace,
	NEG:  InPlace,
	NOT:  InPlace,
	INC:  InPlace,
	DEC:  InPlace,
}

var mnemonicByName = func() map[string]Mnemonic {
	m := make(map[string]Mnemonic, numMnemonics)

	for i, n := range mnemonicNames[1:] {
		m[n] = Mnemonic(i + 1)
	}

	return m
}()

func LookupMnemonic(name string) (Mnemonic, bool) {
	m, ok := mnemonicByName[name]
	return m, ok
}

// ClassOf is the operand class by mnemonic alone.
// Operand-dependent cases (mov to memory) are resolved by the instruction.
func ClassOf(m Mnemonic) Class {
	if m >= numMnemonics {
		return Default
	}

	return classes[m]
}

func (m Mnemonic) Valid() bool { return m != BadMnemonic && m < numMnemonics }

func (m Mnemonic) String() string {
	if m >= numMnemonics {
		return mnemonicNames[BadMnemonic]
	}

	return mnemonicNames[m]
}

func (c Class) String() string {
	switch c {
	case Default:
		return "default"
	case InputsOnly:
		return "inputs_only"
	case InPlace:
		return "in_place"
	default:
		return "class?"
	}
}
