package loreline

import "fmt"

// NodeId is a deterministic 64-bit identity assigned to every AST node
// during parsing. It packs four counters so a saved cursor position
// (interpreter.go) can be compared and restored without walking the
// tree: which top-level section (state/character/beat/import) a node
// lives in, which choice option it is under, which nested
// block it belongs to, and the node's index within that block.
//
//	bits 63..43  section (21 bits)
//	bits 42..28  branch  (15 bits)
//	bits 27..14  block   (14 bits)
//	bits 13..0   node    (14 bits)
type NodeId uint64

const (
	nodeIdNodeBits    = 14
	nodeIdBlockBits   = 14
	nodeIdBranchBits  = 15
	nodeIdSectionBits = 21

	nodeIdNodeMax    = 1<<nodeIdNodeBits - 1
	nodeIdBlockMax   = 1<<nodeIdBlockBits - 1
	nodeIdBranchMax  = 1<<nodeIdBranchBits - 1
	nodeIdSectionMax = 1<<nodeIdSectionBits - 1

	nodeIdNodeShift   = 0
	nodeIdBlockShift  = nodeIdNodeBits
	nodeIdBranchShift = nodeIdBlockShift + nodeIdBlockBits
	nodeIdSectionShift = nodeIdBranchShift + nodeIdBranchBits
)

// makeNodeId packs the four counters into a NodeId, clamping any counter
// that has grown past its field width rather than silently wrapping —
// scripts large enough to hit these limits are a parser-level error, not
// a runtime one, but clamping keeps id construction panic-free.
func makeNodeId(section, branch, block, node int) NodeId {
	if section > nodeIdSectionMax {
		section = nodeIdSectionMax
	}
	if branch > nodeIdBranchMax {
		branch = nodeIdBranchMax
	}
	if block > nodeIdBlockMax {
		block = nodeIdBlockMax
	}
	if node > nodeIdNodeMax {
		node = nodeIdNodeMax
	}
	return NodeId(uint64(section)<<nodeIdSectionShift |
		uint64(branch)<<nodeIdBranchShift |
		uint64(block)<<nodeIdBlockShift |
		uint64(node)<<nodeIdNodeShift)
}

func (id NodeId) Section() int { return int((uint64(id) >> nodeIdSectionShift) & nodeIdSectionMax) }
func (id NodeId) Branch() int  { return int((uint64(id) >> nodeIdBranchShift) & nodeIdBranchMax) }
func (id NodeId) Block() int   { return int((uint64(id) >> nodeIdBlockShift) & nodeIdBlockMax) }
func (id NodeId) Node() int    { return int((uint64(id) >> nodeIdNodeShift) & nodeIdNodeMax) }

// String renders a NodeId as dotted counters, e.g. "3.0.2.7" — used in
// diagnostics and as the stable half of a translation key.
func (id NodeId) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", id.Section(), id.Branch(), id.Block(), id.Node())
}

// idCounters is the mutable parse-time counter state threaded through
// the parser the way the teacher threads Parser.idx/level: pushed and
// popped at block boundaries so nested blocks restart their node
// counter at zero while still producing a globally unique NodeId.
type idCounters struct {
	section int
	branch  int
	block   int
	node    int
}

// nextSection starts a new top-level declaration (state/character/beat/
// import), resetting branch/block/node counters beneath it.
func (c *idCounters) nextSection() {
	c.section++
	c.branch = 0
	c.block = 0
	c.node = 0
}

// nextBranch starts a new choice-option branch within the current
// section, resetting block/node counters beneath it.
func (c *idCounters) nextBranch() {
	c.branch++
	c.block = 0
	c.node = 0
}

// pushBlock enters a nested block (if-body, choice-option body, …),
// returning the node counter value to restore on pop.
func (c *idCounters) pushBlock() int {
	c.block++
	saved := c.node
	c.node = 0
	return saved
}

// popBlock restores the node counter saved by a matching pushBlock.
func (c *idCounters) popBlock(saved int) {
	c.node = saved
}

// next allocates the NodeId for the next node in the current block.
func (c *idCounters) next() NodeId {
	id := makeNodeId(c.section, c.branch, c.block, c.node)
	c.node++
	return id
}
