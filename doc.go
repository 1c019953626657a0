/*
Package prolly implements a probabilistic, content-addressed search tree
(a prolly tree): an ordered key/value index whose node boundaries are
determined by content rather than insertion order. Two trees holding the
same pairs have the same root address regardless of how they were built,
which makes structural diffs and three-way merges cheap.

Data Structure Documentation

Tree

Nodes are immutable blocks stored in a content-addressed block store. A
tree is identified by the address of its root; the zero address denotes
the empty tree. Leaves are at level 0.

    Tree layout:
    +-----------------------------------------------+
    |                 root (level 2)                |
    +-----------------------+-----------------------+
    | internal (level 1)    | internal (level 1)    |
    +-----------+-----------+-----------+-----------+
    | leaf      | leaf      | leaf      | leaf      |
    +-----------+-----------+-----------+-----------+

A node is closed after an entry when it has reached TargetFanout-1
entries, or when it holds at least MinFanout entries and the seeded
64-bit farmhash of the entry's key is a multiple of the boundary pattern.
Entry keys are the leaf keys at level 0 and the first keys of the
children above.

Node

    Node layout:
    +------------------+-----------------------+------------------+-----------------+------------+--------------+-------------+---------------+
    | level (uvarint)  | entry count (uvarint) | body type (byte) | n keys (uvarint)| key region | value region | key ends    | value ends    |
    +------------------+-----------------------+------------------+-----------------+------------+--------------+-------------+---------------+

Key and value ends are little-endian uint32 end offsets into their
regions, n of each. The top bit of a value end marks a chunked value.

Internal nodes store n separator keys and n+1 child addresses instead of
values and have no value ends table. Child i covers
keys[i-1] <= key < keys[i]; each separator equals the first key of the
child to its right.

    Internal body:
    +------------+-------------------------------------+---------------------+
    | key region | n+1 child addresses (32 bytes each) | key ends (n x 4)    |
    +------------+-------------------------------------+---------------------+

Chunked values

Values larger than the inline limit of the configured chunking policy are
split into chunks stored as separate blocks. The leaf stores a
deterministic CBOR descriptor:

    [size (uint), [chunk address 1 (bytes), ..., chunk address n (bytes)]]
*/
package prolly
