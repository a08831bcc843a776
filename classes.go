package vtrack

// COCOClasses are the 80 class names of the COCO dataset in model output
// order
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train",
	"truck", "boat", "traffic light", "fire hydrant", "stop sign",
	"parking meter", "bench", "bird", "cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag",
	"tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite",
	"baseball bat", "baseball glove", "skateboard", "surfboard",
	"tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot",
	"hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant",
	"bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote",
	"keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear",
	"hair drier", "toothbrush",
}

const (
	// PresetVehicles allows road, rail, air and water vehicles
	PresetVehicles = "vehicles"
	// PresetAll allows the broad set of everyday object classes and is the
	// default
	PresetAll = "all"
)

// presets maps a preset name to its allowed COCO class ids
var presets = map[string][]int{
	// bicycle, car, motorcycle, airplane, bus, train, truck, boat
	PresetVehicles: {1, 2, 3, 4, 5, 6, 7, 8},
	PresetAll: {
		0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 14, 15, 16, 17, 18, 19,
		20, 21, 22, 23, 24, 25, 27, 28, 31, 32, 33, 34, 35, 36, 37, 38, 39,
		40, 41, 42, 43, 44, 46, 47, 48, 49, 50, 51, 52, 53, 54, 55, 56, 57,
		58, 59, 60, 61, 62, 63, 64, 65, 66, 67, 68, 69, 70, 71, 72, 73, 74,
		75, 76, 77, 78, 79,
	},
}

// Presets returns the names of the built in class presets
func Presets() []string {
	return []string{PresetVehicles, PresetAll}
}
