package pager

import "fmt"

// StorageStructureKind discriminates which logical file a StorageStructureID
// refers to (spec §4.3: "storage_structure_id is a discriminated union
// identifying which file a page belongs to").
type StorageStructureKind uint8

const (
	StructureColumn StorageStructureKind = iota
	StructureListHeaders
	StructureListMetadata
	StructureListData
	StructureNodeIndex
	StructureOverflow
)

func (k StorageStructureKind) String() string {
	switch k {
	case StructureColumn:
		return "Column"
	case StructureListHeaders:
		return "ListHeaders"
	case StructureListMetadata:
		return "ListMetadata"
	case StructureListData:
		return "ListData"
	case StructureNodeIndex:
		return "NodeIndex"
	case StructureOverflow:
		return "Overflow"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// RelDirection distinguishes a relationship list's forward vs. backward
// adjacency structure (spec §3: "forward and backward adjacency lists are
// independent structures... but mirror each edge").
type RelDirection uint8

const (
	DirectionFwd RelDirection = iota
	DirectionBwd
)

// StorageStructureID identifies the logical file a page record belongs to,
// carrying enough identifiers to reconstruct the on-disk path without
// consulting the catalog (spec §4.3/§9, SUPPLEMENTED FEATURES).
type StorageStructureID struct {
	Kind        StorageStructureKind
	TableID     uint64
	PropertyID  uint64 // meaningful for Column/ListData/ListHeaders/ListMetadata
	IsNodeTable bool
	Direction   RelDirection // meaningful for list structures on relationship tables
	SubKind     uint8        // e.g. 0=data, 1=header, 2=metadata file, for list structures
}

func (id StorageStructureID) String() string {
	return fmt.Sprintf("%s(table=%d,prop=%d,node=%v,dir=%d,sub=%d)",
		id.Kind, id.TableID, id.PropertyID, id.IsNodeTable, id.Direction, id.SubKind)
}
