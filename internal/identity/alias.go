package identity

import "hash/fnv"

var aliasAdjectives = []string{
	"Curious", "Happy", "Clever", "Wise", "Playful", "Brave", "Swift", "Gentle", "Smart", "Busy",
	"Bold", "Lively", "Bright", "Cheerful", "Creative", "Elegant", "Friendly", "Calm", "Quiet", "Merry",
}

var aliasMascots = []string{
	"Owl", "Fox", "Otter", "Raven", "Beaver", "Heron", "Falcon", "Badger", "Lynx", "Stag",
	"Hare", "Wren", "Bison", "Crane", "Marten", "Kestrel", "Puffin", "Osprey", "Ibex", "Newt",
}

// Alias returns a stable, human-friendly label for an id so operators can
// tell visitors apart in logs without reading full UUIDs.
func Alias(id string) string {
	if id == "" {
		return "Anonymous"
	}
	h := fnv.New32a()
	h.Write([]byte(id))
	index := int(h.Sum32())

	return aliasAdjectives[index%len(aliasAdjectives)] + " " +
		aliasMascots[(index/len(aliasAdjectives))%len(aliasMascots)]
}
