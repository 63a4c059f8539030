package vm

// reasons carried by MemError, numbered like the cpu package's hook enums
const (
	MEM_READ_UNMAPPED  = 19
	MEM_WRITE_UNMAPPED = 20
	MEM_WRITE_PROT     = 12
	MEM_RANGE          = 22
)
