// Package isotest builds small ISO-9660 images for tests.
package isotest

import (
	"bytes"
	"encoding/binary"
	"sort"
	"strings"

	"github.com/lunixbochs/struc"
)

const sectorSize = 2048

type record struct {
	Length       uint8
	ExtAttrLen   uint8
	Extent       uint32
	ExtentBE     [4]byte
	DataLength   uint32
	DataLengthBE [4]byte
	Recorded     [7]byte
	Flags        uint8
	UnitSize     uint8
	GapSize      uint8
	VolumeSeq    uint16
	VolumeSeqBE  [2]byte
	NameLength   uint8
}

type node struct {
	name     string
	dir      bool
	data     []byte
	children map[string]*node
	lba      uint32
	size     uint32
}

func (n *node) sorted() []*node {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*node, len(names))
	for i, name := range names {
		out[i] = n.children[name]
	}
	return out
}

func packRecord(buf *bytes.Buffer, name string, lba, size uint32, dir bool) {
	length := 33 + len(name)
	if len(name)%2 == 0 {
		length++
	}
	rec := record{
		Length:     uint8(length),
		Extent:     lba,
		DataLength: size,
		VolumeSeq:  1,
		NameLength: uint8(len(name)),
	}
	binary.BigEndian.PutUint32(rec.ExtentBE[:], lba)
	binary.BigEndian.PutUint32(rec.DataLengthBE[:], size)
	binary.BigEndian.PutUint16(rec.VolumeSeqBE[:], 1)
	if dir {
		rec.Flags = 2
	}
	if err := struc.PackWithOrder(buf, &rec, binary.LittleEndian); err != nil {
		panic(err)
	}
	buf.WriteString(name)
	if len(name)%2 == 0 {
		buf.WriteByte(0)
	}
}

// Build lays out a cooked (2048-byte sector) image holding files, keyed by
// slash-separated paths such as "DATA/PSX.EXE;1". Directories take one sector.
func Build(volume string, files map[string][]byte) []byte {
	root := &node{dir: true, children: map[string]*node{}}
	for path, data := range files {
		parts := strings.Split(path, "/")
		cur := root
		for i, part := range parts {
			if i == len(parts)-1 {
				cur.children[part] = &node{name: part, data: data, size: uint32(len(data))}
				break
			}
			next, ok := cur.children[part]
			if !ok {
				next = &node{name: part, dir: true, children: map[string]*node{}}
				cur.children[part] = next
			}
			cur = next
		}
	}

	// directories first, breadth first, then file extents
	lba := uint32(18)
	var dirs, leaves []*node
	queue := []*node{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		n.lba, n.size = lba, sectorSize
		lba++
		dirs = append(dirs, n)
		for _, c := range n.sorted() {
			if c.dir {
				queue = append(queue, c)
			} else {
				leaves = append(leaves, c)
			}
		}
	}
	for _, f := range leaves {
		f.lba = lba
		lba += (f.size + sectorSize - 1) / sectorSize
	}
	total := lba
	if total < 20 {
		total = 20
	}
	img := make([]byte, int(total)*sectorSize)

	pvd := img[16*sectorSize : 17*sectorSize]
	pvd[0] = 1
	copy(pvd[1:], "CD001")
	pvd[6] = 1
	copy(pvd[8:40], padded("PLAYSTATION", 32))
	copy(pvd[40:72], padded(volume, 32))
	binary.LittleEndian.PutUint32(pvd[80:], total)
	binary.BigEndian.PutUint32(pvd[84:], total)
	binary.LittleEndian.PutUint16(pvd[128:], sectorSize)
	binary.BigEndian.PutUint16(pvd[130:], sectorSize)
	var rootRec bytes.Buffer
	packRecord(&rootRec, "\x00", root.lba, root.size, true)
	copy(pvd[156:190], rootRec.Bytes())

	term := img[17*sectorSize : 18*sectorSize]
	term[0] = 255
	copy(term[1:], "CD001")
	term[6] = 1

	parents := map[*node]*node{root: root}
	for _, d := range dirs {
		for _, c := range d.children {
			if c.dir {
				parents[c] = d
			}
		}
	}
	for _, d := range dirs {
		var buf bytes.Buffer
		packRecord(&buf, "\x00", d.lba, d.size, true)
		p := parents[d]
		packRecord(&buf, "\x01", p.lba, p.size, true)
		for _, c := range d.sorted() {
			packRecord(&buf, c.name, c.lba, c.size, c.dir)
		}
		copy(img[int(d.lba)*sectorSize:], buf.Bytes())
	}
	for _, f := range leaves {
		copy(img[int(f.lba)*sectorSize:], f.data)
	}
	return img
}

// Raw converts a cooked image to raw 2352-byte mode 2 form 1 sectors.
func Raw(cooked []byte) []byte {
	sectors := len(cooked) / sectorSize
	raw := make([]byte, 0, sectors*2352)
	for i := 0; i < sectors; i++ {
		var sector [2352]byte
		for j := 1; j < 11; j++ {
			sector[j] = 0xff
		}
		sector[15] = 2
		copy(sector[24:], cooked[i*sectorSize:(i+1)*sectorSize])
		raw = append(raw, sector[:]...)
	}
	return raw
}

func padded(s string, n int) []byte {
	if len(s) > n {
		s = s[:n]
	}
	return []byte(s + strings.Repeat(" ", n-len(s)))
}
