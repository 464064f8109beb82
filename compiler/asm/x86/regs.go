package x86

type (
	Reg uint8

	Word int64
)

const (
	RAX Reg = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RBP
	RSP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	NumRegs = int(R15) + 1
)

var regNames = [NumRegs]string{
	RAX: "rax",
	RBX: "rbx",
	RCX: "rcx",
	RDX: "rdx",
	RSI: "rsi",
	RDI: "rdi",
	RBP: "rbp",
	RSP: "rsp",
	R8:  "r8",
	R9:  "r9",
	R10: "r10",
	R11: "r11",
	R12: "r12",
	R13: "r13",
	R14: "r14",
	R15: "r15",
}

var regByName = func() map[string]Reg {
	m := make(map[string]Reg, NumRegs)

	for r, n := range regNames {
		m[n] = Reg(r)
	}

	return m
}()

// ArgRegs are the System V integer argument registers in order.
var ArgRegs = []Reg{RDI, RSI, RDX, RCX, R8, R9}

func LookupReg(name string) (Reg, bool) {
	r, ok := regByName[name]
	return r, ok
}

func (r Reg) Valid() bool { return int(r) < NumRegs }

func (r Reg) String() string {
	if !r.Valid() {
		return "reg?"
	}

	return regNames[r]
}
