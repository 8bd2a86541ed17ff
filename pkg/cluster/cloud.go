package cluster

import (
	"context"
	"fmt"

	"github.com/marusama/semaphore"
)

// Node is one simulated cluster member. Map tasks and sort calls on the
// node share its core budget.
type Node struct {
	Index int
	Name  string
	cores semaphore.Semaphore
}

func (node *Node) String() string {
	return node.Name
}

func (node *Node) acquire(ctx context.Context) error {
	return node.cores.Acquire(ctx, 1)
}

func (node *Node) release() {
	node.cores.Release(1)
}

// busy returns the number of cores in use.
func (node *Node) busy() int {
	return node.cores.GetCount()
}

type Cloud struct {
	members []*Node
}

func NewCloud(nodes int, coresPerNode int) *Cloud {
	if nodes < 1 {
		nodes = 1
	}
	if coresPerNode < 1 {
		coresPerNode = 1
	}
	cloud := &Cloud{
		members: make([]*Node, nodes),
	}
	for i := 0; i < nodes; i++ {
		cloud.members[i] = &Node{
			Index: i,
			Name:  fmt.Sprintf("node%d", i),
			cores: semaphore.New(coresPerNode),
		}
	}
	return cloud
}

func (cloud *Cloud) Size() int {
	return len(cloud.members)
}

func (cloud *Cloud) Members() []*Node {
	return cloud.members
}

func (cloud *Cloud) Node(i int) *Node {
	return cloud.members[i]
}
