package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	imc "github.com/leo-cydar/openimc"
)

/*
===============================================================================
    Util: View MCD File
===============================================================================
*/

var baseFile = filepath.Base(os.Args[0])

func check(err error) {
	if err != nil {
		imc.FatalfDepth(3, "error: %v", err)
	}
}

func usage() {
	fmt.Printf("OpenIMC version %s\n", imc.OpenIMCVersion)
	fmt.Printf("usage: %s file_or_dir\n", baseFile)
	os.Exit(1)
}

func describe(f *imc.McdFile) {
	for _, slide := range f.Slides() {
		description, _ := slide.Description()
		fmt.Printf("slide %d %q (%d panoramas, %d acquisitions)\n",
			slide.ID, description, len(slide.Panoramas), len(slide.Acquisitions))
		for _, panorama := range slide.Panoramas {
			description, _ := panorama.Description()
			fmt.Printf("  panorama %d %q (%d acquisitions)\n",
				panorama.ID, description, len(panorama.Acquisitions))
		}
		for _, acquisition := range slide.Acquisitions {
			description, _ := acquisition.Description()
			width, _ := acquisition.WidthPx()
			height, _ := acquisition.HeightPx()
			fmt.Printf("  acquisition %d %q (%dx%d px, %d channels: %s)\n",
				acquisition.ID, description, width, height,
				acquisition.NumChannels(), strings.Join(acquisition.ChannelNames(), ", "))
		}
	}
}

func main() {
	imc.GetConfig()
	if len(os.Args) == 2 && (os.Args[1] == "--help" || os.Args[1] == "-h") {
		usage()
	}
	if len(os.Args) != 2 {
		usage()
	}
	stat, err := os.Stat(os.Args[1])
	check(err)
	if isDir := stat.IsDir(); !isDir {
		f := imc.NewMcdFile(os.Args[1])
		check(f.Open())
		defer f.Close()
		describe(f)
	} else {
		errorCount := 0
		successCount := 0
		err := imc.ConcurrentlyWalkDir(os.Args[1], func(path string) {
			if !strings.EqualFold(filepath.Ext(path), ".mcd") {
				return
			}
			f := imc.NewMcdFile(path)
			basePath := filepath.Base(path)
			if err := f.Open(); err != nil {
				imc.Errorf(`error parsing "%s": %v`, basePath, err)
				errorCount++
				return
			}
			f.Close()
			successCount++
			imc.Debugf(`parsed "%s"`, basePath)
		})
		check(err)
		if errorCount == 0 {
			imc.Infof("parsed %d files without errors", successCount)
		} else {
			imc.Infof("parsed %d files without errors, and failed to parse %d files", successCount, errorCount)
		}
	}
}
