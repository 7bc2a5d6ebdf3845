// Package roomcode generates memorable room codes for callers who don't
// bring their own. Codes are purely client-side convenience; the relay
// treats any non-empty string as a valid room code.
package roomcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"brave", "calm", "eager", "gentle", "lively", "merry", "proud", "quiet", "witty", "zesty",
}

var animals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"penguin", "flamingo", "pelican", "sparrow", "robin", "toucan", "parrot", "dolphin", "whale", "narwhal",
}

var words = []string{
	"sunbeam", "stardust", "pepper", "muffin", "bubble", "sprout", "glimmer", "whisker", "echo", "jelly",
	"marble", "maple", "cocoa", "hazel", "breeze", "meadow", "willow", "ember", "poppy", "pixel",
}

// Generate returns a random adjective-animal-word code, e.g.
// "cozy-otter-ember".
func Generate() string {
	return fmt.Sprintf("%s-%s-%s",
		adjectives[randomIndex(len(adjectives))],
		animals[randomIndex(len(animals))],
		words[randomIndex(len(words))],
	)
}

// randomIndex returns a cryptographically secure random index for a slice of
// the given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(fmt.Sprintf("generate random index: %v", err))
	}
	return int(n.Int64())
}
