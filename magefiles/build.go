//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the testbed shaders to SPIR-V.
func (Build) Shaders() error {
	shaders := map[string]string{
		"testbed/assets/shaders/scene.vert": "testbed/assets/shaders/scene.vert.spv",
		"testbed/assets/shaders/scene.frag": "testbed/assets/shaders/scene.frag.spv",
		"testbed/assets/shaders/post.vert":  "testbed/assets/shaders/post.vert.spv",
		"testbed/assets/shaders/post.frag":  "testbed/assets/shaders/post.frag.spv",
	}
	for src, dst := range shaders {
		if _, err := executeCmd("glslc", withArgs(src, "-o", dst), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// Runs the unit tests.
func (Build) Test() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}
