package detection

import "strings"

// Class identifiers in the contiguous 80-category COCO taxonomy used by
// Detectron2 and YOLO exports (no background class, person is 0).
const (
	ClassPerson     = 0
	ClassBicycle    = 1
	ClassCar        = 2
	ClassMotorcycle = 3
	ClassBus        = 5
	ClassTrain      = 6
	ClassTruck      = 7
)

// NumClasses is the size of the taxonomy
const NumClasses = 80

// VehicleClasses are the categories considered a vehicle for cropping
var VehicleClasses = []int{ClassCar, ClassTruck}

var classNames = [NumClasses]string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

var nameToID = func() map[string]int {
	m := make(map[string]int, NumClasses)
	for i, n := range classNames {
		m[n] = i
	}
	return m
}()

// labels vision models tend to use instead of the canonical COCO name
var aliases = map[string]int{
	"automobile": ClassCar,
	"sedan":      ClassCar,
	"suv":        ClassCar,
	"vehicle":    ClassCar,
	"pickup":     ClassTruck,
	"lorry":      ClassTruck,
	"motorbike":  ClassMotorcycle,
	"people":     ClassPerson,
	"man":        ClassPerson,
	"woman":      ClassPerson,
}

// ClassName returns the label for id, or "" if id is outside the taxonomy
func ClassName(id int) string {
	if id < 0 || id >= NumClasses {
		return ""
	}
	return classNames[id]
}

// ClassID resolves a label to its class id. Matching is case-insensitive
// and accepts a few common synonyms.
func ClassID(name string) (int, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if id, ok := nameToID[n]; ok {
		return id, true
	}
	if id, ok := aliases[n]; ok {
		return id, true
	}
	return -1, false
}

// IsVehicle reports whether id is one of VehicleClasses
func IsVehicle(id int) bool {
	for _, v := range VehicleClasses {
		if v == id {
			return true
		}
	}
	return false
}
