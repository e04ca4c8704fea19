package uatypes

// GUID is the OPC UA builtin Guid value (Part 6, 5.1.3): a standard
// 128-bit GUID in its four conventional fields, carried as a Variant
// scalar the same way NodeId's Guid identifier form carries one.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}
