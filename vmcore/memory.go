package vmcore

// Memory limits, grounded on memory_manager.h's VM_MAX_GLOBALS /
// VM_MAX_ARRAYS / VM_ARRAY_ELEMENTS constants.
const (
	MaxGlobals     = 64
	MaxArrays      = 16
	ArrayElements  = 64
)

type arraySlot struct {
	active bool
	size   uint16
	data   [ArrayElements]int32
}

// Memory is the component VM's memory manager (C6): a fixed bank of
// global int32 slots and a fixed-size pool of fixed-capacity arrays.
// There is no dynamic allocation — every slot is pre-sized at
// construction, matching the embedded target's static allocation
// model (memory_manager.cpp).
type Memory struct {
	globals [MaxGlobals]int32
	arrays  [MaxArrays]arraySlot
}

// NewMemory constructs a zeroed Memory bank.
func NewMemory() *Memory {
	return &Memory{}
}

// StoreGlobal writes value into global slot index. It returns false if
// index is out of range.
func (m *Memory) StoreGlobal(index uint8, value int32) bool {
	if int(index) >= MaxGlobals {
		return false
	}
	m.globals[index] = value
	return true
}

// LoadGlobal reads global slot index. It returns false if index is out
// of range.
func (m *Memory) LoadGlobal(index uint8) (int32, bool) {
	if int(index) >= MaxGlobals {
		return 0, false
	}
	return m.globals[index], true
}

// CreateArray allocates arrayID with the given element size, zero-
// filled. It fails if arrayID is out of range, size is zero or exceeds
// ArrayElements, or the slot is already active.
func (m *Memory) CreateArray(arrayID uint8, size int) bool {
	if int(arrayID) >= MaxArrays || size <= 0 || size > ArrayElements {
		return false
	}
	slot := &m.arrays[arrayID]
	if slot.active {
		return false
	}
	slot.active = true
	slot.size = uint16(size)
	slot.data = [ArrayElements]int32{}
	return true
}

// StoreArrayElement writes value into arrays[arrayID][index], bounds
// checked against the array's active size.
func (m *Memory) StoreArrayElement(arrayID uint8, index uint16, value int32) bool {
	if !m.IsValidArrayIndex(arrayID, index) {
		return false
	}
	m.arrays[arrayID].data[index] = value
	return true
}

// LoadArrayElement reads arrays[arrayID][index], bounds checked
// against the array's active size.
func (m *Memory) LoadArrayElement(arrayID uint8, index uint16) (int32, bool) {
	if !m.IsValidArrayIndex(arrayID, index) {
		return 0, false
	}
	return m.arrays[arrayID].data[index], true
}

// ArraySlice exposes the live backing slice of an active array,
// bounded to its allocated size, for callers that want direct access —
// the "hybrid access" approach of get_array_base /
// get_array_size_direct. The engine's LOAD_ARRAY and STORE_ARRAY
// handlers do not use it; they go through LoadArrayElement and
// StoreArrayElement.
func (m *Memory) ArraySlice(arrayID uint8) ([]int32, bool) {
	if int(arrayID) >= MaxArrays || !m.arrays[arrayID].active {
		return nil, false
	}
	slot := &m.arrays[arrayID]
	return slot.data[:slot.size], true
}

// IsValidGlobalIndex reports whether index addresses a global slot.
func (m *Memory) IsValidGlobalIndex(index uint8) bool {
	return int(index) < MaxGlobals
}

// IsValidArrayID reports whether arrayID names an active array.
func (m *Memory) IsValidArrayID(arrayID uint8) bool {
	return int(arrayID) < MaxArrays && m.arrays[arrayID].active
}

// IsValidArrayIndex reports whether index is in bounds for the active
// array arrayID.
func (m *Memory) IsValidArrayIndex(arrayID uint8, index uint16) bool {
	if !m.IsValidArrayID(arrayID) {
		return false
	}
	return index < m.arrays[arrayID].size
}

// Reset clears every global and deactivates every array, matching
// MemoryManager::reset().
func (m *Memory) Reset() {
	m.globals = [MaxGlobals]int32{}
	m.arrays = [MaxArrays]arraySlot{}
}
